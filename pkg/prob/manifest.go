package prob

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/sre-norns/wyrd/pkg/manifest"
)

var (
	ErrNilProto = errors.New("spec prototype is nil")
	ErrNoKind   = errors.New("empty kind")
)

// Spec types by kind. Specs are decoded into a fresh value of the registered type.
var specTypes = map[Kind]reflect.Type{}

// RegisterKind associates kind with the type of proto, which may be a value or a pointer to a struct.
func RegisterKind(kind Kind, proto any) error {
	if kind == "" {
		return ErrNoKind
	}

	t := reflect.TypeOf(proto)
	if t == nil {
		return ErrNilProto
	}
	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(proto).IsNil() {
			return fmt.Errorf("%w: %v", ErrNilProto, t)
		}
		t = t.Elem()
	}

	specTypes[kind] = t
	return nil
}

func UnregisterKind(kind Kind) {
	delete(specTypes, kind)
}

// InstanceOf returns a manifest of kind holding a new zero spec.
func InstanceOf(kind manifest.Kind) (manifest.ResourceManifest, error) {
	t, known := specTypes[kind]
	if !known {
		return manifest.ResourceManifest{}, fmt.Errorf("%w: %q", manifest.ErrUnknownKind, kind)
	}

	return manifest.ResourceManifest{
		TypeMeta: manifest.TypeMeta{
			Kind: kind,
		},
		Spec: reflect.New(t).Interface(),
	}, nil
}
