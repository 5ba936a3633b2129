package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	intentOnce   sync.Once
	intentSchema *jsonschema.Schema
	intentErr    error
)

// CompileSchema compiles one of the embedded schemas by file name.
func CompileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	url := "mem://schemas/" + name
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c.Compile(url)
}

// ValidateIntent checks that the intent carries the target fields its type
// requires. It does not resolve any of the referenced ids.
func ValidateIntent(in JobIntent) error {
	intentOnce.Do(func() {
		intentSchema, intentErr = CompileSchema("job_intent.schema.json")
	})
	if intentErr != nil {
		return intentErr
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := intentSchema.Validate(v); err != nil {
		return errors.New(leafMessage(err))
	}
	return nil
}

func leafMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}
