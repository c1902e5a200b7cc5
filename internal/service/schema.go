package service

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "numfn.v1.Evaluator"

const schemaFile = "numfn/v1/evaluator.proto"

//go:embed evaluator.proto
var schemaSource string

// Method names of the Evaluator service.
const (
	MethodEvaluate    = "Evaluate"
	MethodEmit        = "Emit"
	MethodDisassemble = "Disassemble"
)

var (
	schemaOnce sync.Once
	schema     *desc.ServiceDescriptor
	schemaErr  error
)

// Schema returns the parsed Evaluator service descriptor.
func Schema() (*desc.ServiceDescriptor, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = parseSchema()
	})
	return schema, schemaErr
}

func parseSchema() (*desc.ServiceDescriptor, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{schemaFile: schemaSource}),
	}
	fds, err := parser.ParseFiles(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", schemaFile, err)
	}
	sd := fds[0].FindService(ServiceName)
	if sd == nil {
		return nil, fmt.Errorf("%s does not define %s", schemaFile, ServiceName)
	}
	for _, check := range []struct {
		method, message, field string
		typ                    descriptorpb.FieldDescriptorProto_Type
		repeated               bool
	}{
		{MethodEvaluate, "in", "function", descriptorpb.FieldDescriptorProto_TYPE_STRING, false},
		{MethodEvaluate, "in", "inputs", descriptorpb.FieldDescriptorProto_TYPE_DOUBLE, true},
		{MethodEvaluate, "out", "outputs", descriptorpb.FieldDescriptorProto_TYPE_DOUBLE, true},
		{MethodEmit, "in", "function", descriptorpb.FieldDescriptorProto_TYPE_STRING, false},
		{MethodEmit, "out", "text", descriptorpb.FieldDescriptorProto_TYPE_STRING, false},
		{MethodDisassemble, "in", "function", descriptorpb.FieldDescriptorProto_TYPE_STRING, false},
		{MethodDisassemble, "out", "text", descriptorpb.FieldDescriptorProto_TYPE_STRING, false},
	} {
		md := sd.FindMethodByName(check.method)
		if md == nil {
			return nil, fmt.Errorf("%s: missing method %s", ServiceName, check.method)
		}
		msg := md.GetOutputType()
		if check.message == "in" {
			msg = md.GetInputType()
		}
		fd := msg.FindFieldByName(check.field)
		if fd == nil || fd.GetType() != check.typ || fd.IsRepeated() != check.repeated {
			return nil, fmt.Errorf("%s: field %s.%s has the wrong shape", ServiceName, msg.GetName(), check.field)
		}
	}
	return sd, nil
}

func method(name string) (*desc.MethodDescriptor, error) {
	sd, err := Schema()
	if err != nil {
		return nil, err
	}
	return sd.FindMethodByName(name), nil
}

// FullMethod returns the invocation path of an Evaluator method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func stringField(msg *dynamic.Message, name string) (string, error) {
	v, err := msg.TryGetFieldByName(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s: unexpected %T", name, v)
	}
	return s, nil
}

func doublesField(msg *dynamic.Message, name string) ([]float64, error) {
	v, err := msg.TryGetFieldByName(name)
	if err != nil {
		return nil, err
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %s: unexpected %T", name, v)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("field %s[%d]: unexpected %T", name, i, item)
		}
		out[i] = f
	}
	return out, nil
}

func setDoubles(msg *dynamic.Message, name string, values []float64) error {
	items := make([]interface{}, len(values))
	for i, v := range values {
		items[i] = v
	}
	return msg.TrySetFieldByName(name, items)
}
