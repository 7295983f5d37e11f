package model

import (
	"fmt"

	"github.com/jhump/protoreflect/v2/protoresolve"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/lschmierer/fhirpath-go/internal/typesystem"
)

// ProtoProvider is a Model Provider backed by protobuf message
// descriptors — useful when a FHIR release's structural definitions are
// distributed as compiled .proto schemas (spec.md §4.5's "pluggable
// Model Provider" requirement; no network access, pure descriptor
// introspection over an already-loaded protoresolve.Resolver).
type ProtoProvider struct {
	resolver  protoresolve.Resolver
	hierarchy map[string][]string
}

// NewProtoProvider wraps an already-populated resolver. Callers build the
// resolver once at startup (e.g. from a FileDescriptorSet) — resolution
// itself never touches the network.
func NewProtoProvider(resolver protoresolve.Resolver) *ProtoProvider {
	return &ProtoProvider{resolver: resolver, hierarchy: make(map[string][]string)}
}

func (p *ProtoProvider) findMessage(name string) (protoreflect.MessageDescriptor, bool) {
	desc, err := protoresolve.FindMessageDescriptor(p.resolver, protoreflect.FullName(name))
	if err != nil {
		return nil, false
	}
	return desc, true
}

func (p *ProtoProvider) ResolveType(name string) (typesystem.Type, bool) {
	msg, ok := p.findMessage(name)
	if !ok {
		return typesystem.Type{}, false
	}
	return typesystem.Type{
		Primary:      typesystem.Any,
		Singleton:    true,
		OriginalName: name,
		Model: &typesystem.ModelContext{
			TypeName:  string(msg.FullName()),
			Hierarchy: []string{string(msg.FullName())},
		},
	}, true
}

func (p *ProtoProvider) ResolveElement(typeName, elementName string) (Element, bool) {
	msg, ok := p.findMessage(typeName)
	if !ok {
		return Element{}, false
	}
	fd := msg.Fields().ByName(protoreflect.Name(elementName))
	if fd == nil {
		return Element{}, false
	}
	return fieldToElement(fd), true
}

func (p *ProtoProvider) Elements(typeName string) ([]Element, bool) {
	msg, ok := p.findMessage(typeName)
	if !ok {
		return nil, false
	}
	fields := msg.Fields()
	out := make([]Element, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		out = append(out, fieldToElement(fields.Get(i)))
	}
	return out, true
}

func (p *ProtoProvider) IsSubtype(sub, base string) bool {
	return sub == base
}

func fieldToElement(fd protoreflect.FieldDescriptor) Element {
	maxCard := 1
	if fd.IsList() {
		maxCard = -1
	}
	primary := typesystem.Any
	switch fd.Kind() {
	case protoreflect.StringKind:
		primary = typesystem.String
	case protoreflect.Int32Kind, protoreflect.Int64Kind, protoreflect.Sint32Kind, protoreflect.Sint64Kind:
		primary = typesystem.Integer
	case protoreflect.DoubleKind, protoreflect.FloatKind:
		primary = typesystem.Decimal
	case protoreflect.BoolKind:
		primary = typesystem.Boolean
	case protoreflect.MessageKind:
		primary = typesystem.Any
	}
	name := string(fd.Name())
	originalName := fmt.Sprintf("%s", name)
	return Element{
		Name: name,
		Type: typesystem.Type{
			Primary:      primary,
			Singleton:    maxCard == 1,
			OriginalName: originalName,
		},
		MaxCard: maxCard,
	}
}
