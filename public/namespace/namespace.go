// Package namespace implements the Global Namespace: discovery of
// every (model, storage) binding registered for a Kubernetes
// namespace, and a federated SQL view over the resulting model tables.
//
// There is no Delta/Lance/DuckDB engine anywhere in the example pack
// (and the Non-goals exclude a real Delta log), so the federation is
// backed by an in-process SQLite database: each discovered table's
// rows are materialized once via Model.ToTable().Rows() and loaded
// into a dynamically created SQLite table named after table_name.
//
// Called by: public/runtime (GetGlobalNamespace)
// Calls: internal/registry, public/model, github.com/mattn/go-sqlite3
package namespace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ulagbulag/openark-go/internal/objectstore"
	"github.com/ulagbulag/openark-go/internal/registry"
	"github.com/ulagbulag/openark-go/public/model"
)

// ErrNotLoaded is returned by SQL when Update has never successfully run.
var ErrNotLoaded = errors.New("namespace: no federation loaded yet, call Update first")

const (
	defaultAWSRegion            = "us-east-1"
	defaultObjectStorageSecret  = "object-storage-user-0"
	defaultAccessKeyField       = "CONSOLE_ACCESS_KEY"
	defaultSecretKeyField       = "CONSOLE_SECRET_KEY"
)

// GlobalNamespace discovers models registered in one Kubernetes
// namespace and exposes them as a single queryable SQL federation.
type GlobalNamespace struct {
	Debug bool

	loader    registry.Loader
	namespace string
	userName  string
	timestamp string

	mu sync.RWMutex
	db *sql.DB
}

// New constructs a GlobalNamespace bound to namespace. Call Update to
// perform the initial discovery; the namespace has no tables until then.
func New(loader registry.Loader, namespace, userName, sessionTimestamp string) *GlobalNamespace {
	return &GlobalNamespace{
		loader:    loader,
		namespace: namespace,
		userName:  userName,
		timestamp: sessionTimestamp,
	}
}

// loadedTable is one model's materialized rows, named after table_name.
type loadedTable struct {
	name string
	rows []map[string]interface{}
}

// Update rebuilds the federation from scratch: discovers bindings,
// loads each surviving model's table, and swaps in a fresh SQLite
// handle (rebuild-and-swap, so concurrent readers of the old handle
// are unaffected).
func (g *GlobalNamespace) Update(ctx context.Context) error {
	bindings, err := g.loader.ListModelStorageBindings(ctx, g.namespace)
	if err != nil {
		return fmt.Errorf("namespace: list bindings in %s: %w", g.namespace, err)
	}

	seen := make(map[string]bool, len(bindings))
	var tables []loadedTable

	for _, binding := range bindings {
		storageName, ok := binding.Spec.Storage.TargetName()
		if !ok {
			continue
		}
		key := binding.Spec.Model + "\x00" + storageName
		if seen[key] {
			continue
		}
		seen[key] = true

		if binding.Status.State != registry.StateReady {
			continue
		}

		target, ok := binding.Status.Storage.Target()
		if !ok || target.ObjectStorage == nil {
			g.logf("%s: binding %s/%s has no objectStorage target, skipping", g.namespace, binding.Spec.Model, storageName)
			continue
		}

		m, err := g.buildModel(ctx, binding.Spec.Model, target.ObjectStorage)
		if err != nil {
			g.logf("%s: model %s on %s: %v, skipping", g.namespace, binding.Spec.Model, storageName, err)
			continue
		}

		rows, err := m.ToTable().Rows(ctx)
		if err != nil {
			if errors.Is(err, model.ErrTableNotFound) || errors.Is(err, model.ErrTableEmpty) {
				g.logf("%s: model %s is not inited yet on %s, skipping", g.namespace, binding.Spec.Model, storageName)
				continue
			}
			return fmt.Errorf("namespace: read table for model %s: %w", binding.Spec.Model, err)
		}
		if len(rows) == 0 {
			continue
		}
		tables = append(tables, loadedTable{name: m.TableName, rows: rows})
	}

	db, err := buildFederation(tables)
	if err != nil {
		return fmt.Errorf("namespace: build federation: %w", err)
	}

	g.mu.Lock()
	old := g.db
	g.db = db
	g.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// buildModel resolves secrets/endpoint for target and constructs a
// Model bound to its own object-storage client, following the
// borrowed/owned branching of the original registry loader: a
// borrowed target carries its own endpoint/secretRef, an owned one
// defaults to the in-cluster MinIO endpoint and its default secret.
func (g *GlobalNamespace) buildModel(ctx context.Context, modelName string, target *registry.ObjectStorageTarget) (*model.Model, error) {
	endpoint := target.Endpoint
	secretRef := target.SecretRef
	if target.Borrowed == nil {
		endpoint = fmt.Sprintf("http://minio.%s.svc", g.namespace)
		secretRef = registry.SecretRef{
			Name:         defaultObjectStorageSecret,
			MapAccessKey: defaultAccessKeyField,
			MapSecretKey: defaultSecretKeyField,
		}
	}

	accessKey, secretKey, err := g.loader.ResolveSecret(ctx, g.namespace, secretRef.Name, secretRef.MapAccessKey, secretRef.MapSecretKey)
	if err != nil {
		return nil, fmt.Errorf("resolve secret %s: %w", secretRef.Name, err)
	}

	storageOptions := map[string]string{
		"AWS_ACCESS_KEY_ID":     accessKey,
		"AWS_ENDPOINT_URL":      endpoint,
		"AWS_REGION":            defaultAWSRegion,
		"AWS_SECRET_ACCESS_KEY": secretKey,
	}

	store, err := buildObjectStoreClient(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, err
	}

	return model.New(modelName, g.userName, g.timestamp, storageOptions, store), nil
}

// buildObjectStoreClient strips the scheme off endpoint (minio-go wants
// a bare host[:port]) and derives Secure from it.
func buildObjectStoreClient(endpoint, accessKey, secretKey string) (*objectstore.Client, error) {
	secure := true
	host := endpoint
	switch {
	case strings.HasPrefix(host, "http://"):
		secure = false
		host = strings.TrimPrefix(host, "http://")
	case strings.HasPrefix(host, "https://"):
		host = strings.TrimPrefix(host, "https://")
	}

	store, err := objectstore.New(objectstore.Options{
		Endpoint:        host,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          defaultAWSRegion,
		Secure:          secure,
	})
	if err != nil {
		return nil, fmt.Errorf("construct object store client for %s: %w", endpoint, err)
	}
	return store, nil
}

// SQL runs query against the current federation snapshot. Returns
// ErrNotLoaded if Update has not yet populated a federation.
func (g *GlobalNamespace) SQL(ctx context.Context, query string) (*sql.Rows, error) {
	g.mu.RLock()
	db := g.db
	g.mu.RUnlock()

	if db == nil {
		return nil, ErrNotLoaded
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("namespace: query: %w", err)
	}
	return rows, nil
}

// buildFederation loads every table's rows into a fresh in-memory
// SQLite database, one table per model, columns inferred from the
// first row's keys.
func buildFederation(tables []loadedTable) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if err := loadTable(db, t); err != nil {
			db.Close()
			return nil, fmt.Errorf("load table %q: %w", t.name, err)
		}
	}
	return db, nil
}

func loadTable(db *sql.DB, t loadedTable) error {
	columns := sortedKeys(t.rows[0])

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
	}

	createColumns := make([]string, len(columns))
	for i, c := range quoted {
		createColumns[i] = c + " TEXT"
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdentifier(t.name), strings.Join(createColumns, ", "))
	if _, err := db.Exec(createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdentifier(t.name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range t.rows {
		args := make([]interface{}, len(columns))
		for i, c := range columns {
			args[i] = stringifyValue(row[c])
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return nil
}

func sortedKeys(row map[string]interface{}) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// stringifyValue renders a JSON-decoded value as TEXT: scalars as
// their natural string form, everything else (objects, arrays) as its
// JSON encoding.
func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
