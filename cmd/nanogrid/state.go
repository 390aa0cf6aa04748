package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/nanogrid/nanogrid/chooser"
	"github.com/arthur-debert/nanogrid/nanogrid/persist"
	"github.com/arthur-debert/nanogrid/nanogrid/reactive"
)

// viewType tags the views this command line saves
const viewType = "nanogrid"

// stateFiles are the default file names per backend
var stateFiles = map[persist.Type]string{
	persist.TypeLocalStorage: "state.json",
	persist.TypePref:         "prefs.db",
	persist.TypeView:         "views.db",
}

// stateBackend maps the --state-backend flag to a provider type
func stateBackend(name string) (persist.Type, error) {
	switch name {
	case "", "local", string(persist.TypeLocalStorage):
		return persist.TypeLocalStorage, nil
	case string(persist.TypePref):
		return persist.TypePref, nil
	case string(persist.TypeView):
		return persist.TypeView, nil
	}
	return "", NewConfigError("open state", fmt.Sprintf("unknown state backend %q", name),
		"Use --state-backend local|pref|view")
}

// stateEnv is an opened state backend plus the options addressing the
// configured key inside it
type stateEnv struct {
	typ      persist.Type
	services *persist.Services
	options  persist.Options
	close    func() error
}

// openState opens the configured backend
func (cli *CLI) openState() (*stateEnv, error) {
	typ, err := stateBackend(cli.v.GetString("state-backend"))
	if err != nil {
		return nil, err
	}
	path := cli.v.GetString("state-file")
	if path == "" {
		dir := xdgDir("XDG_STATE_HOME", ".local", "state")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, NewStateError("create state directory", err)
		}
		path = filepath.Join(dir, stateFiles[typ])
	}
	key := cli.v.GetString("state-key")

	// Writes go straight through; the command exits right after
	env := &stateEnv{
		typ:      typ,
		services: &persist.Services{Logger: cli.logger},
		options:  persist.Options{Type: typ, Debounce: &reactive.DebounceSpec{}},
		close:    func() error { return nil },
	}
	switch typ {
	case persist.TypeLocalStorage:
		local, err := persist.OpenLocalStore(path)
		if err != nil {
			return nil, NewStateError("open "+path, err)
		}
		env.services.Local = local
		env.options.LocalStorageKey = key
	case persist.TypePref:
		prefs, err := persist.OpenPrefStore(path)
		if err != nil {
			return nil, NewStateError("open "+path, err)
		}
		env.services.Prefs = prefs
		env.options.PrefKey = key
		env.close = prefs.Close
	case persist.TypeView:
		views, err := persist.OpenViewStore(path)
		if err != nil {
			return nil, NewStateError("open "+path, err)
		}
		env.services.Views = views
		env.options.ViewID = key
		env.close = views.Close
	}
	cli.logger.Debug("state opened", "backend", typ, "path", path, "key", key)
	return env, nil
}

// provider addresses path inside the state document
func (env *stateEnv) provider(path string) (*persist.Provider, error) {
	opts := env.options
	opts.Path = path
	p, err := persist.Create(opts, env.services)
	if err != nil {
		return nil, NewStateError("open state at "+path, err)
	}
	return p, nil
}

func (cli *CLI) addStateCommand() {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit remembered filter state",
		Long: `Read, write and clear the persisted state document. Paths are dotted,
e.g. "filterChooser.value". The chooser used by 'filter --remember' saves its
chips under "filterChooser.value" and its favorites under
"filterChooser.favorites".`,
	}

	stateCmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Print the state at path (default: the chooser state)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withState(func(env *stateEnv) error {
				p, err := env.provider(pathArg(args))
				if err != nil {
					return err
				}
				defer p.Destroy()
				value, ok, err := p.Read()
				if err != nil {
					return NewStateError("read state", err)
				}
				if !ok {
					value = nil
				}
				return writeJSON(cmd, value)
			})
		},
	})

	stateCmd.AddCommand(&cobra.Command{
		Use:   "set <path> <json>",
		Short: "Save a JSON value at path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return NewConfigError("set state", fmt.Sprintf("value is not JSON: %v", err))
			}
			return cli.withState(func(env *stateEnv) error {
				p, err := env.provider(args[0])
				if err != nil {
					return err
				}
				p.Write(value)
				p.Destroy()
				return nil
			})
		},
	})

	clearCmd := &cobra.Command{
		Use:   "clear [path]",
		Short: "Remove the state at path (default: the chooser state)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return cli.withState(func(env *stateEnv) error {
				p, err := env.provider(pathArg(args))
				if err != nil {
					return err
				}
				defer p.Destroy()
				if all {
					err = p.ClearAll()
				} else {
					err = p.Clear()
				}
				if err != nil {
					return NewStateError("clear state", err)
				}
				return nil
			})
		},
	}
	clearCmd.Flags().Bool("all", false, "Remove the whole state document")
	stateCmd.AddCommand(clearCmd)

	stateCmd.AddCommand(&cobra.Command{
		Use:   "views",
		Short: "List saved views (view backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withState(func(env *stateEnv) error {
				if env.services.Views == nil {
					return NewConfigError("list views", "views need --state-backend view")
				}
				views, err := env.services.Views.List(cmd.Context(), viewType)
				if err != nil {
					return NewStateError("list views", err)
				}
				t := table{Header: []string{"id", "name", "updated"}, Data: views}
				for _, v := range views {
					t.Rows = append(t.Rows, []string{v.ID, v.Name, v.UpdatedAt.Format(time.RFC3339)})
				}
				return cli.output(cmd, t)
			})
		},
	})

	stateCmd.AddCommand(&cobra.Command{
		Use:   "new-view <name>",
		Short: "Create an empty view and print its id (view backend)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.withState(func(env *stateEnv) error {
				if env.services.Views == nil {
					return NewConfigError("create view", "views need --state-backend view")
				}
				v, err := env.services.Views.Create(cmd.Context(), viewType, args[0], map[string]any{})
				if err != nil {
					return NewStateError("create view", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.ID)
				return nil
			})
		},
	})

	cli.rootCmd.AddCommand(stateCmd)
}

// withState opens the state backend around fn
func (cli *CLI) withState(fn func(env *stateEnv) error) error {
	env, err := cli.openState()
	if err != nil {
		return err
	}
	err = fn(env)
	if cerr := env.close(); cerr != nil && err == nil {
		err = NewStateError("close state", cerr)
	}
	return err
}

func pathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return chooser.DefaultPersistPath
}

func writeJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
