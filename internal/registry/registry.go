// Package registry models the namespace-scoped custom resources the
// Global Namespace and Runtime Root consume: `functions` and
// `modelstoragebindings` under group dash.ulagbulag.io/v1alpha1, plus
// the core Secret objects referenced from them.
//
// Kubernetes cluster-credential loading is out of scope: the caller
// supplies an already-constructed dynamic.Interface (see k8s.go); this
// package only decodes CRD shapes and walks the cloned/owned storage
// target union the original source uses.
//
// Called by: public/namespace (model discovery), public/runtime (Function lookup)
// Calls: k8s.io/client-go (dynamic), k8s.io/apimachinery
package registry

import "errors"

const (
	// Group is the API group every registry object in this package belongs to.
	Group = "dash.ulagbulag.io"
	// Version is the API version every registry object in this package belongs to.
	Version = "v1alpha1"
)

// ErrNotFound is returned when a function or binding lookup misses,
// wrapping spec.md's RegistryNotFound kind.
var ErrNotFound = errors.New("registry: not found")

// SpecStorageTarget is the spec-level storage reference: a named
// target, resolved through whichever of Cloned/Owned is present.
type SpecStorageTarget struct {
	Cloned *SpecStorageTargetChild `json:"cloned,omitempty"`
	Owned  *SpecStorageTargetChild `json:"owned,omitempty"`
}

// SpecStorageTargetChild names the storage target at spec level (a
// string identifier, unlike the richer status-level target below).
type SpecStorageTargetChild struct {
	Target string `json:"target"`
}

// TargetName resolves whichever of Cloned/Owned is set.
func (s SpecStorageTarget) TargetName() (string, bool) {
	if s.Cloned != nil {
		return s.Cloned.Target, true
	}
	if s.Owned != nil {
		return s.Owned.Target, true
	}
	return "", false
}

// StatusStorageTarget is the status-level storage reference: resolved
// through Cloned/Owned to a concrete Target describing the backing storage.
type StatusStorageTarget struct {
	Cloned *StatusStorageTargetChild `json:"cloned,omitempty"`
	Owned  *StatusStorageTargetChild `json:"owned,omitempty"`
}

type StatusStorageTargetChild struct {
	Target Target `json:"target"`
}

// Target resolves whichever of Cloned/Owned is set.
func (s StatusStorageTarget) Target() (Target, bool) {
	if s.Cloned != nil {
		return s.Cloned.Target, true
	}
	if s.Owned != nil {
		return s.Owned.Target, true
	}
	return Target{}, false
}

// Target holds the concrete storage backend for a binding, once resolved.
type Target struct {
	ObjectStorage *ObjectStorageTarget `json:"objectStorage,omitempty"`
}

// ObjectStorageTarget is the portion of a resolved storage target this
// runtime understands: an endpoint plus a secret reference carrying the
// object-storage access/secret key field names.
type ObjectStorageTarget struct {
	// Endpoint is empty for a non-borrowed (self-owned) target, in
	// which case the loader derives the in-cluster default endpoint.
	Endpoint  string    `json:"endpoint,omitempty"`
	SecretRef SecretRef `json:"secretRef"`
	// Borrowed marks a target owned by another namespace; its
	// presence (not its value) is what the original source tests for.
	Borrowed *bool `json:"borrowed,omitempty"`
}

// SecretRef names the Secret object and the keys within it holding the
// base64-encoded access/secret credentials.
type SecretRef struct {
	Name         string `json:"name"`
	MapAccessKey string `json:"mapAccessKey"`
	MapSecretKey string `json:"mapSecretKey"`
}

// BindingSpec is a modelstoragebindings object's spec.
type BindingSpec struct {
	Model   string            `json:"model"`
	Storage SpecStorageTarget `json:"storage"`
}

// BindingStatus is a modelstoragebindings object's status.
type BindingStatus struct {
	State   string              `json:"state"`
	Storage StatusStorageTarget `json:"storage"`
}

// Binding is one modelstoragebindings custom resource.
type Binding struct {
	Spec   BindingSpec   `json:"spec"`
	Status BindingStatus `json:"status"`
}

// StateReady is the only status.state value the Global Namespace accepts.
const StateReady = "Ready"

// FunctionSpec is a functions object's spec: the input/output model names.
type FunctionSpec struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Function is one functions custom resource.
type Function struct {
	Spec FunctionSpec `json:"spec"`
}
