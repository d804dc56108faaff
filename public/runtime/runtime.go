// Package runtime implements the Runtime Root: the process entry point
// that loads environment configuration, derives the caller's identity
// (user_name, per-session timestamp), lazy-builds the Messenger, and
// vends Models, Model Channels, Functions, and the Global Namespace.
//
// Unlike the original source's process-wide singleton (see spec.md
// Design Notes §9, "Global singleton runtime"), Runtime here is an
// explicitly constructed value passed by the caller; an opt-in
// process-global slot is offered only for tools that genuinely need
// ambient access (e.g. an interactive SQL front-end), mirroring the
// way public/agent.StandardConfigResolver in the teacher never reaches
// for global state on its own.
//
// Called by: cmd/openark-* example binaries
// Calls: internal/config, internal/messenger, internal/objectstore, internal/registry,
// public/model, public/namespace
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
	"time"

	"k8s.io/client-go/dynamic"

	"github.com/ulagbulag/openark-go/internal/codec"
	"github.com/ulagbulag/openark-go/internal/config"
	"github.com/ulagbulag/openark-go/internal/messenger"
	"github.com/ulagbulag/openark-go/internal/objectstore"
	"github.com/ulagbulag/openark-go/internal/registry"
	"github.com/ulagbulag/openark-go/public/model"
	"github.com/ulagbulag/openark-go/public/namespace"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Runtime is the process-side entry point: one Messenger connection
// and one set of normalized storage options, shared by every Model,
// Channel, and Function it vends.
type Runtime struct {
	cfg       *config.Config
	userName  string
	timestamp string
	namespace string

	dynamicClient dynamic.Interface

	busOnce sync.Once
	bus     messenger.Messenger
	busErr  error

	nsOnce sync.Once
	ns     *namespace.GlobalNamespace
}

// Option customizes New beyond environment-derived defaults.
type Option func(*Runtime)

// WithNamespace overrides the registry namespace derived from the
// environment (defaults to "dash", mirroring the original source's
// hardcoded `self._namespace = 'dash' or _get_current_namespace()`,
// whose `'dash' or ...` always short-circuits to `'dash'`).
func WithNamespace(ns string) Option {
	return func(r *Runtime) { r.namespace = ns }
}

// WithUserName overrides the identity PUTs are filed under (defaults
// to the OS user, see deriveUserName).
func WithUserName(name string) Option {
	return func(r *Runtime) { r.userName = name }
}

// New loads configuration (internal/config.Load) and derives identity.
// dynamicClient is an already-constructed Kubernetes dynamic client
// used for registry access (kubeconfig loading is an out-of-scope
// collaborator, supplied by the caller); it may be nil if the caller
// never calls GetFunction or GetGlobalNamespace.
func New(dynamicClient dynamic.Interface, opts ...Option) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("runtime: load config: %w", err)
	}

	r := &Runtime{
		cfg:           cfg,
		userName:      deriveUserName(),
		timestamp:     time.Now().UTC().Format(timestampLayout),
		namespace:     "dash",
		dynamicClient: dynamicClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// deriveUserName follows the teacher's env-first convention: the
// $USER environment variable, falling back to os/user.Current, and
// finally "anonymous" if both are unavailable (a headless container
// with no passwd entry and no $USER set).
func deriveUserName() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "anonymous"
}

// UserName returns the identity this runtime files payload PUTs under.
func (r *Runtime) UserName() string { return r.userName }

// Timestamp returns this runtime session's per-session path prefix
// (colons not yet replaced with dashes; Model.New does that).
func (r *Runtime) Timestamp() string { return r.timestamp }

// storageOptions returns the credential map every Model this runtime
// vends is constructed with. Model.New normalizes it further.
func (r *Runtime) storageOptions() map[string]string {
	return map[string]string{
		"AWS_ACCESS_KEY_ID":     r.cfg.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": r.cfg.AWSSecretAccessKey,
		"AWS_ENDPOINT_URL":      r.cfg.AWSEndpointURL,
		"AWS_REGION":            r.cfg.AWSRegion,
	}
}

// messengerBus lazy-builds the Messenger for cfg.DefaultMessenger,
// wrapping messenger.ErrDriverUnavailable on an unregistered driver
// name (spec.md §4.8).
func (r *Runtime) messengerBus() (messenger.Messenger, error) {
	r.busOnce.Do(func() {
		r.bus, r.busErr = messenger.New(r.cfg.DefaultMessenger, messenger.Options{
			Addrs:     r.cfg.NATSAddrs,
			Account:   r.cfg.NATSAccount,
			Password:  r.cfg.NATSPassword,
			AllowDrop: r.cfg.NATSAllowDrop,
		})
	})
	return r.bus, r.busErr
}

// GetModel constructs a Model for name, sharing this runtime's
// credentials, identity, and session timestamp. A fresh object-storage
// client is built per call (objectstore.Client is cheap and
// concurrency-safe; Models are typically long-lived and few per process).
func (r *Runtime) GetModel(name string) (*model.Model, error) {
	store, err := r.objectStoreClient()
	if err != nil {
		return nil, err
	}
	return model.New(name, r.userName, r.timestamp, r.storageOptions(), store), nil
}

func (r *Runtime) objectStoreClient() (*objectstore.Client, error) {
	opts := model.NormalizeStorageOptions(r.storageOptions())
	secure := opts["AWS_ALLOW_HTTP"] != "true"

	endpoint := strings.TrimPrefix(strings.TrimPrefix(opts["AWS_ENDPOINT_URL"], "https://"), "http://")
	store, err := objectstore.New(objectstore.Options{
		Endpoint:        endpoint,
		AccessKeyID:     opts["AWS_ACCESS_KEY_ID"],
		SecretAccessKey: opts["AWS_SECRET_ACCESS_KEY"],
		Region:          opts["AWS_REGION"],
		Secure:          secure,
	})
	if err != nil {
		return nil, fmt.Errorf("runtime: construct object store client: %w", err)
	}
	return store, nil
}

// GetModelChannel binds a Model channel for name on this runtime's
// Messenger. The channel is queue-grouped under its own topic name iff
// PIPE_QUEUE_GROUP=="true" (spec.md Invariant 4).
func (r *Runtime) GetModelChannel(name string) (*model.Channel, error) {
	m, err := r.GetModel(name)
	if err != nil {
		return nil, err
	}
	bus, err := r.messengerBus()
	if err != nil {
		return nil, err
	}

	queue := ""
	if r.cfg.QueueGroup {
		queue = name
	}
	return model.NewChannel(m, bus, codec.Json, queue), nil
}

// GetGlobalNamespace lazily constructs the Global Namespace bound to
// this runtime's registry namespace. Call Update on the result to
// perform (or refresh) discovery; it starts empty.
func (r *Runtime) GetGlobalNamespace() *namespace.GlobalNamespace {
	r.nsOnce.Do(func() {
		loader := registry.NewK8sLoader(r.dynamicClient)
		r.ns = namespace.New(loader, r.namespace, r.userName, r.timestamp)
	})
	return r.ns
}

// GetFunction performs the registry lookup described in spec.md §4.8:
// fetch the named functions CRD, extract spec.input/spec.output, and
// build a Function directly from this runtime's Messenger and storage
// options (mirroring the original source's OpenArkFunction construction
// in openark/function.py, generalized from a direct nats.NATS handle
// to this runtime's Messenger abstraction).
func (r *Runtime) GetFunction(ctx context.Context, name string) (*model.Function, error) {
	loader := registry.NewK8sLoader(r.dynamicClient)
	fn, err := loader.GetFunction(ctx, r.namespace, name)
	if err != nil {
		return nil, fmt.Errorf("runtime: lookup function %q: %w", name, err)
	}

	input, err := r.GetModelChannel(fn.Spec.Input)
	if err != nil {
		return nil, err
	}
	output, err := r.GetModelChannel(fn.Spec.Output)
	if err != nil {
		return nil, err
	}
	return model.NewFunction(input, output, messenger.DefaultServiceTimeout), nil
}

// Close releases the Messenger connection, if one was ever built.
func (r *Runtime) Close() error {
	if r.bus != nil {
		return r.bus.Close()
	}
	return nil
}

// global is the optional process-wide registration slot described in
// spec.md's Design Notes §9: tools that cannot thread a Runtime
// through their call chain (an interactive SQL front-end, a notebook
// helper) may register one instance here.
var (
	globalMu  sync.RWMutex
	globalRun *Runtime
)

// RegisterGlobal publishes r as the process-wide instance returned by
// Global. Intended for interactive front-ends only; ordinary callers
// should pass their Runtime by context/argument instead.
func RegisterGlobal(r *Runtime) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRun = r
}

// Global returns the process-wide instance registered by RegisterGlobal,
// or nil if none has been registered.
func Global() *Runtime {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRun
}
