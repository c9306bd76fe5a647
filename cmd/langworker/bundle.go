package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"langworker/internal/bundle"
	"langworker/internal/config"
	"langworker/internal/grammar"
	"langworker/internal/infrastructure"
	"langworker/internal/validation"
)

type buildOptions struct {
	kind      string
	locale    string
	name      string
	version   string
	lexicon   string
	rules     string
	reentrant bool
}

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Build and inspect language archives",
	}
	cmd.AddCommand(newBundleBuildCmd())
	cmd.AddCommand(newBundleInspectCmd())
	return cmd
}

func newBundleBuildCmd() *cobra.Command {
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build <output>",
		Short: "Build an archive from a word list or a rule file",
		Long: `Build a speller archive from a word list:

  langworker bundle build --kind speller --locale se --lexicon words.tsv se.zhfst

or a grammar archive from a rule file:

  langworker bundle build --kind grammar --locale en --rules rules.yaml en.bhfst

Word lists hold one "word<TAB>weight" per line; the weight is optional.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundleBuild(cmd, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.kind, "kind", "", "archive kind: speller or grammar")
	flags.StringVar(&opts.locale, "locale", "", "language tag recorded in the manifest")
	flags.StringVar(&opts.name, "name", "", "display name")
	flags.StringVar(&opts.version, "archive-version", "", "archive version")
	flags.StringVar(&opts.lexicon, "lexicon", "", "word list (speller)")
	flags.StringVar(&opts.rules, "rules", "", "rules.yaml (grammar)")
	flags.BoolVar(&opts.reentrant, "reentrant", true, "allow concurrent analysis calls")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func runBundleBuild(cmd *cobra.Command, opts *buildOptions, output string) error {
	m := bundle.Manifest{
		Kind:      strings.ToLower(opts.kind),
		Locale:    opts.locale,
		Name:      opts.name,
		Version:   opts.version,
		Reentrant: opts.reentrant,
	}
	if m.Locale == "" {
		m.Locale, _, _ = strings.Cut(filepath.Base(output), ".")
	}

	logger := infrastructure.NewLogger(cmd.ErrOrStderr(), config.LoggingConfig{Level: "warn", Format: "text"})
	validator := validation.NewFileValidator(logger)
	if err := validator.ValidateArchiveOutput(output, m.Kind); err != nil {
		return err
	}

	files := make(map[string][]byte, 1)
	switch m.Kind {
	case bundle.KindSpeller:
		if opts.lexicon == "" {
			return errors.New("--lexicon is required for speller archives")
		}
		if err := validator.ValidateSourceFile(opts.lexicon); err != nil {
			return err
		}
		raw, err := os.ReadFile(opts.lexicon)
		if err != nil {
			return fmt.Errorf("read lexicon: %w", err)
		}
		entries, err := bundle.ParseLexicon(raw)
		if err != nil {
			return err
		}
		data, err := bundle.EncodeLexicon(entries)
		if err != nil {
			return err
		}
		files[bundle.LexiconFile] = data

	case bundle.KindGrammar:
		if opts.rules == "" {
			return errors.New("--rules is required for grammar archives")
		}
		if err := validator.ValidateSourceFile(opts.rules); err != nil {
			return err
		}
		raw, err := os.ReadFile(opts.rules)
		if err != nil {
			return fmt.Errorf("read rules: %w", err)
		}
		rules, err := bundle.DecodeRules(raw)
		if err != nil {
			return err
		}
		// Reject patterns that would only fail at load time.
		if _, err := grammar.Compile(rules); err != nil {
			return err
		}
		files[bundle.RulesFile] = raw

	default:
		return fmt.Errorf("unknown kind %q: want speller or grammar", opts.kind)
	}

	if err := bundle.Build(output, m, files); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s archive %s (locale %s)\n", m.Kind, output, m.Locale)
	return nil
}

func newBundleInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Verify an archive and print its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bundle.Open(args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(struct {
				Manifest bundle.Manifest `yaml:"manifest"`
				Members  []string        `yaml:"members"`
			}{a.Manifest, a.Members()})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
