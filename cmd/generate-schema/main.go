// Command generate-schema emits the JSON schema of dittodrive's config.yaml.
//
// Usage:
//
//	generate-schema [-o config.schema.json]
//
// Point an editor's YAML language server at the output to get completion
// for store, namespace, importer and blob settings.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dittodrive/pkg/config"
)

const schemaID = "https://github.com/marmos91/dittodrive/config.schema.json"

func main() {
	out := flag.String("o", "config.schema.json", "output file, - for stdout")
	flag.Parse()

	data, err := driveConfigSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate-schema: %v\n", err)
		os.Exit(1)
	}

	if *out == "-" {
		_, _ = os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "generate-schema: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote drive config schema to %s\n", *out)
}

// driveConfigSchema reflects config.Config using the yaml tag names, so the
// schema matches the keys written by "dittodrive init".
func driveConfigSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		FieldNameTag:   "yaml",
		DoNotReference: true,
	}

	s := r.Reflect(&config.Config{})
	s.ID = jsonschema.ID(schemaID)
	s.Title = "dittodrive config.yaml"
	s.Description = "Settings for the drive namespace: persistence backend, folder naming, search, bulk import pacing and the blob store."

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return append(data, '\n'), nil
}
