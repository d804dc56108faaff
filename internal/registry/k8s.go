package registry

import (
	"context"
	"encoding/base64"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
)

var (
	modelStorageBindingsResource = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "modelstoragebindings"}
	functionsResource            = schema.GroupVersionResource{Group: Group, Version: Version, Resource: "functions"}
	secretsResource              = schema.GroupVersionResource{Version: "v1", Resource: "secrets"}
)

// Loader is the registry access surface the Global Namespace and
// Runtime Root depend on. Implemented here against a Kubernetes dynamic
// client; a test double can satisfy it without a cluster.
type Loader interface {
	ListModelStorageBindings(ctx context.Context, namespace string) ([]Binding, error)
	GetFunction(ctx context.Context, namespace, name string) (Function, error)
	// ResolveSecret decodes the two base64 fields named by accessKeyField
	// and secretKeyField out of the named Secret.
	ResolveSecret(ctx context.Context, namespace, name, accessKeyField, secretKeyField string) (accessKey, secretKey string, err error)
}

// k8sLoader implements Loader against an already-constructed dynamic
// client. Loading kubeconfig/cluster credentials is the caller's concern.
type k8sLoader struct {
	dynamic dynamic.Interface
}

// NewK8sLoader wraps an already-constructed dynamic.Interface as a Loader.
func NewK8sLoader(dynamicClient dynamic.Interface) Loader {
	return &k8sLoader{dynamic: dynamicClient}
}

func (l *k8sLoader) ListModelStorageBindings(ctx context.Context, namespace string) ([]Binding, error) {
	list, err := l.dynamic.Resource(modelStorageBindingsResource).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("registry: list modelstoragebindings in %s: %w", namespace, err)
	}

	bindings := make([]Binding, 0, len(list.Items))
	for _, item := range list.Items {
		var binding Binding
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &binding); err != nil {
			return nil, fmt.Errorf("registry: decode modelstoragebinding %s: %w", item.GetName(), err)
		}
		bindings = append(bindings, binding)
	}
	return bindings, nil
}

func (l *k8sLoader) GetFunction(ctx context.Context, namespace, name string) (Function, error) {
	obj, err := l.dynamic.Resource(functionsResource).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return Function{}, fmt.Errorf("%w: function %s/%s: %v", ErrNotFound, namespace, name, err)
	}

	var fn Function
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &fn); err != nil {
		return Function{}, fmt.Errorf("registry: decode function %s/%s: %w", namespace, name, err)
	}
	return fn, nil
}

func (l *k8sLoader) ResolveSecret(ctx context.Context, namespace, name, accessKeyField, secretKeyField string) (string, string, error) {
	obj, err := l.dynamic.Resource(secretsResource).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", "", fmt.Errorf("registry: get secret %s/%s: %w", namespace, name, err)
	}

	data, found, err := unstructuredNestedStringMap(obj.Object, "data")
	if err != nil {
		return "", "", fmt.Errorf("registry: read secret %s/%s data: %w", namespace, name, err)
	}
	if !found {
		return "", "", fmt.Errorf("registry: secret %s/%s has no data", namespace, name)
	}

	accessKey, err := decodeSecretField(data, accessKeyField)
	if err != nil {
		return "", "", fmt.Errorf("registry: secret %s/%s: %w", namespace, name, err)
	}
	secretKey, err := decodeSecretField(data, secretKeyField)
	if err != nil {
		return "", "", fmt.Errorf("registry: secret %s/%s: %w", namespace, name, err)
	}
	return accessKey, secretKey, nil
}

// unstructuredNestedStringMap reads a nested string-valued map field
// out of an unstructured object, the shape a Secret's "data" field has
// once round-tripped through the dynamic client (base64 strings, not
// decoded []byte, unlike a typed corev1.Secret).
func unstructuredNestedStringMap(obj map[string]interface{}, field string) (map[string]string, bool, error) {
	raw, ok := obj[field]
	if !ok {
		return nil, false, nil
	}
	asMap, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false, fmt.Errorf("field %q is not a map", field)
	}
	out := make(map[string]string, len(asMap))
	for k, v := range asMap {
		s, ok := v.(string)
		if !ok {
			return nil, false, fmt.Errorf("field %q.%q is not a string", field, k)
		}
		out[k] = s
	}
	return out, true, nil
}

func decodeSecretField(data map[string]string, field string) (string, error) {
	encoded, ok := data[field]
	if !ok {
		return "", fmt.Errorf("missing secret field %q", field)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode secret field %q: %w", field, err)
	}
	return string(decoded), nil
}
