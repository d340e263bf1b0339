// Command hl7fhir is the application-wiring collaborator around the
// transformation core: a thin Cobra CLI that loads configuration via
// Viper, builds a Template Loader over the configured discovery tiers,
// and runs the Coordinator over one input message.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/convert"
	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template"
	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template/embedded"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "hl7fhir",
		Short: "Convert HL7 v2.x messages to FHIR-shaped bundles via declarative templates",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (YAML/JSON/TOML)")

	root.AddCommand(newConvertCmd(&configFile))
	root.AddCommand(newTemplatesCmd(&configFile))
	return root
}

func buildLoader(configFile string) (*template.Loader, convert.Config, error) {
	cfg, err := convert.LoadConfig(configFile)
	if err != nil {
		return nil, cfg, err
	}
	loader := template.NewLoader(cfg.BasePathResource, cfg.AdditionalResourcesLocation, embedded.FS)
	return loader, cfg, nil
}

func newConvertCmd(configFile *string) *cobra.Command {
	var inputFile string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a single HL7 v2.x message to a FHIR-shaped bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

			loader, cfg, err := buildLoader(*configFile)
			if err != nil {
				return err
			}

			var raw []byte
			if inputFile != "" {
				raw, err = os.ReadFile(inputFile)
			} else {
				raw, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return err
			}

			coordinator := convert.NewCoordinator(loader, cfg.DefaultHL7Version, cfg.SupportedMessages, logger)
			result, convErr := coordinator.Convert(context.Background(), string(raw))

			output := map[string]interface{}{
				"bundle":   marshalBundle(result.Bundle),
				"coverage": result.Report,
			}
			if convErr != nil {
				output["error"] = convErr.Error()
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(output); err != nil {
				return err
			}
			return convErr
		},
	}
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "path to the HL7 v2.x message (defaults to stdin)")
	return cmd
}

func newTemplatesCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List every message template discovered across all tiers and enabled by supported.hl7.messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, cfg, err := buildLoader(*configFile)
			if err != nil {
				return err
			}
			names, err := loader.DiscoverMessageTypes()
			if err != nil {
				return err
			}
			sort.Strings(names)
			for _, n := range names {
				if cfg.Supports(n) {
					fmt.Println(n)
				}
			}
			return nil
		},
	}
}

func marshalBundle(b *convert.Bundle) map[string]interface{} {
	return map[string]interface{}{"type": "collection", "timestamp": b.Timestamp, "entries": b.Entries}
}
