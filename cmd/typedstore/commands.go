package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"code.byted.org/khicago/typedstore"
	"code.byted.org/khicago/typedstore/config"
)

type rootFlags struct {
	configPath string
	dbPath     string
	name       string
	defaultKey string
	layout     string
	verbose    bool
}

// session is the store opened for one command invocation.
type session struct {
	store typedstore.Store[string]
	close func() error
	out   io.Writer
}

func newRootCommand(out io.Writer) *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "typedstore",
		Short:         "Read and edit typed values in a string key-value store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "store configuration file (.yaml, .toml or .jsonc)")
	pf.StringVar(&flags.dbPath, "db", "typedstore.db", "bolt database file, when no config is given")
	pf.StringVar(&flags.name, "name", "default", "namespace, when no config is given")
	pf.StringVar(&flags.defaultKey, "default-key", "", "key used when a command omits it")
	pf.StringVar(&flags.layout, "layout", "", "envelope layout for writes: nested or spread")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log to stderr")

	open := func(cmd *cobra.Command) (*session, error) {
		return openSession(cmd, flags)
	}

	cmd.AddCommand(
		newGetCommand(open),
		newSetCommand(open),
		newAddCommand(open),
		newPopCommand(open),
		newRemoveCommand(open),
		newKeysCommand(open),
		newEnvelopeCommand(open),
		newClearCommand(open),
	)
	return cmd
}

func openSession(cmd *cobra.Command, flags *rootFlags) (*session, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.Config{
			Name:   flags.name,
			Driver: config.DriverConfig{Kind: config.DriverBolt, Path: flags.dbPath},
		}
	}
	if cmd.Flags().Changed("default-key") {
		cfg.DefaultKey = flags.defaultKey
	}
	if cmd.Flags().Changed("layout") {
		cfg.Layout = flags.layout
	}

	logger := zap.NewNop()
	if flags.verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
	}

	store, closeFn, err := config.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{
		store: store,
		close: func() error {
			_ = logger.Sync()
			return closeFn()
		},
		out: cmd.OutOrStdout(),
	}, nil
}

type opener func(cmd *cobra.Command) (*session, error)

// run opens the store, runs fn and always closes the store.
func run(open opener, fn func(cmd *cobra.Command, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := open(cmd)
		if err != nil {
			return err
		}
		err = fn(cmd, s)
		if cerr := s.close(); err == nil {
			err = cerr
		}
		return err
	}
}

func (s *session) print(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, string(data))
	return err
}

// parseValue reads a JSON command-line argument. With asMap a JSON object
// becomes an ordered *typedstore.Map instead of a plain object.
func parseValue(arg string, asMap bool) (any, error) {
	if asMap {
		m := typedstore.NewMap()
		if err := m.UnmarshalJSON([]byte(arg)); err != nil {
			return nil, fmt.Errorf("value is not a JSON object: %w", err)
		}
		return m, nil
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return v, nil
}

func keyArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func newGetCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value stored under key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(open, func(_ *cobra.Command, s *session) error {
				v, err := s.store.Get(cmd.Context(), keyArg(args, 0))
				if err != nil {
					return err
				}
				return s.print(v)
			})(cmd, args)
		},
	}
}

func newSetCommand(open opener) *cobra.Command {
	var asMap, raw bool
	cmd := &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Store a JSON value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1], asMap)
			if err != nil {
				return err
			}
			var opts []typedstore.SetOption
			if raw {
				opts = append(opts, typedstore.WithIgnore())
			}
			return run(open, func(_ *cobra.Command, s *session) error {
				return s.store.Set(cmd.Context(), v, args[0], opts...)
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&asMap, "map", false, "store a JSON object as an ordered map")
	cmd.Flags().BoolVar(&raw, "raw", false, "store the JSON as-is, without an envelope")
	return cmd
}

func newAddCommand(open opener) *cobra.Command {
	var asMap bool
	cmd := &cobra.Command{
		Use:   "add <key> <json>",
		Short: "Merge into a stored object or map, or append to a stored array",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1], asMap)
			if err != nil {
				return err
			}
			return run(open, func(_ *cobra.Command, s *session) error {
				return s.store.Add(cmd.Context(), v, args[0])
			})(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&asMap, "map", false, "parse the JSON object as an ordered map")
	return cmd
}

func newPopCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "pop <key> <index>",
		Short: "Remove a field, map entry or array element",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(open, func(_ *cobra.Command, s *session) error {
				return s.store.Pop(cmd.Context(), args[1], args[0])
			})(cmd, args)
		},
	}
}

func newRemoveCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [key]",
		Aliases: []string{"remove"},
		Short:   "Delete key",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(open, func(_ *cobra.Command, s *session) error {
				return s.store.Remove(cmd.Context(), keyArg(args, 0))
			})(cmd, args)
		},
	}
}

func newKeysCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [pattern]",
		Short: "List keys of the namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(open, func(_ *cobra.Command, s *session) error {
				keys, err := s.store.Keys(cmd.Context(), keyArg(args, 0))
				if err != nil {
					return err
				}
				for _, k := range keys {
					if _, err := fmt.Fprintln(s.out, k); err != nil {
						return err
					}
				}
				return nil
			})(cmd, args)
		},
	}
}

func newEnvelopeCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "envelope [key]",
		Short: "Print the stored envelope without unwrapping it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(open, func(_ *cobra.Command, s *session) error {
				v, err := s.store.Envelope(cmd.Context(), keyArg(args, 0))
				if err != nil {
					return err
				}
				return s.print(v)
			})(cmd, args)
		},
	}
}

func newClearCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every key of the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(open, func(_ *cobra.Command, s *session) error {
				return s.store.Clear(cmd.Context())
			})(cmd, args)
		},
	}
}
