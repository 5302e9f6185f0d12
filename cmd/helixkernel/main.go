// Package main provides a smoke-test CLI for the helixkernel library: it
// opens an Engine, declares a small demo schema, and exercises the graph,
// vector, and full-text surfaces in one process. The real network gateway
// lives outside this repository.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/helixkernel/kernel/pkg/engine"
	"github.com/helixkernel/kernel/pkg/ids"
	"github.com/helixkernel/kernel/pkg/schema"
	"github.com/helixkernel/kernel/pkg/traversal"
	"github.com/helixkernel/kernel/pkg/value"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "helixkernel",
		Short: "helixkernel - embedded graph + vector + full-text kernel",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("helixkernel v%s\n", version)
		},
	})

	smokeCmd := &cobra.Command{
		Use:   "smoke",
		Short: "Open an engine and run one request through every index",
		RunE:  runSmoke,
	}
	smokeCmd.Flags().String("data-dir", "", "storage root (defaults to HELIX_DATA_DIR)")
	smokeCmd.Flags().String("schema", "", "optional schema YAML file")
	rootCmd.AddCommand(smokeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSmoke(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := engine.ConfigFromEnv()
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}

	sch := demoSchema()
	if path, _ := cmd.Flags().GetString("schema"); path != "" {
		sch, err = schema.LoadYAML(path)
		if err != nil {
			return err
		}
	}

	eng, err := engine.Open(cfg, sch, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	eng.Register("smoke", smokeHandler)
	resp := eng.Dispatch("smoke", nil)
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	fmt.Printf("smoke ok: %v\n", resp.Data)
	return nil
}

// smokeHandler drives one write and one read request through all three
// indices, the same shape a gateway-generated handler would take.
func smokeHandler(e *engine.Engine, _ map[string]any) (any, error) {
	var alice, bob ids.ID
	err := e.Update(func(tr *traversal.Traversal) error {
		a, err := tr.AddN("User", value.PropertyMap{
			"name": value.String("Alice"),
			"bio":  value.String("distributed systems and dense retrieval"),
		}).First()
		if err != nil {
			return err
		}
		b, err := tr.AddN("User", value.PropertyMap{
			"name": value.String("Bob"),
			"bio":  value.String("graph traversal enthusiast"),
		}).First()
		if err != nil {
			return err
		}
		alice, bob = a.Node.ID, b.Node.ID
		if _, err := tr.AddE("Follows", alice, bob, nil).First(); err != nil {
			return err
		}
		_, err = tr.AddV("Note", []float32{0.1, 0.2, 0.3, 0.4}, nil).First()
		return err
	})
	if err != nil {
		return nil, err
	}

	result := map[string]any{}
	err = e.View(func(tr *traversal.Traversal) error {
		follows, err := tr.N("User", alice).Out("Follows").Collect()
		if err != nil {
			return err
		}
		result["follows"] = len(follows)

		nearest, err := tr.SearchV("Note", []float32{0.1, 0.2, 0.3, 0.4}, 1, 0).Collect()
		if err != nil {
			return err
		}
		result["nearest"] = len(nearest)

		matches, err := tr.SearchBM25("graph traversal", 5).Collect()
		if err != nil {
			return err
		}
		result["bm25"] = len(matches)
		return nil
	})
	return result, err
}

// demoSchema declares the labels the smoke run writes.
func demoSchema() *schema.Schema {
	sch := schema.New()
	sch.AddNode(&schema.Node{Label: "User", Properties: []schema.Property{
		{Name: "name", Type: value.KindString, Index: schema.Index},
		{Name: "bio", Type: value.KindString},
	}})
	sch.AddEdge(&schema.Edge{Label: "Follows", From: "User", To: "User", Unique: true})
	sch.AddVector(&schema.Vector{Label: "Note", Dim: 4})
	return sch
}
