package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/nanogrid/nanogrid/chooser"
	"github.com/arthur-debert/nanogrid/nanogrid/filter"
	"github.com/arthur-debert/nanogrid/nanogrid/gridfilter"
	"github.com/arthur-debert/nanogrid/nanogrid/store"
)

func (cli *CLI) addFilterCommand() {
	cmd := &cobra.Command{
		Use:   "filter [query...]",
		Short: "Print the records matching filter queries",
		Long: `Each query has the form "<field> <op> <value>", where field is a field name
or display name. Queries are ANDed unless --or is given. --json takes a JSON
filter instead, e.g. '{"field":"status","op":"=","value":"open"}'.

With --remember the chooser state is saved and restored: running filter with
no queries applies the remembered filter.`,
		RunE: cli.runFilter,
	}
	addQueryFlags(cmd)
	cmd.Flags().Bool("remember", false, "Restore and save the filter in the state backend")
	cmd.Flags().Bool("clear", false, "Drop the remembered filter before applying queries")
	cmd.Flags().Bool("favorite", false, "Also add the resulting filter to the remembered favorites")
	cmd.Flags().Bool("labels", false, "Print the chooser chips instead of records")
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) addValuesCommand() {
	cmd := &cobra.Command{
		Use:   "values <field> [query...]",
		Short: "Print a column's candidate values and record counts",
		Long: `Lists the values a column header filter offers for field: the values of
records matching every other filter, with their counts. Values selected by the
column's own filter are marked checked.`,
		Args: cobra.MinimumNArgs(1),
		RunE: cli.runValues,
	}
	addQueryFlags(cmd)
	cmd.Flags().String("search", "", "Only show values containing this text")
	cli.rootCmd.AddCommand(cmd)
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("or", false, "Join queries with OR")
	cmd.Flags().String("json", "", "JSON filter, ANDed with any queries")
}

// session is a store with a chooser bound to it
type session struct {
	store   *store.Store
	chooser *chooser.Model
	state   *stateEnv
}

func (s *session) Close() error {
	s.chooser.Destroy()
	if s.state != nil {
		return s.state.close()
	}
	return nil
}

// openSession loads the data file and binds a chooser, persisted when
// remember is set
func (cli *CLI) openSession(remember bool) (*session, error) {
	st, err := cli.openStore()
	if err != nil {
		return nil, err
	}
	sess := &session{store: st}
	cfg := chooser.Config{Bind: st, Logger: cli.logger}
	if remember {
		if sess.state, err = cli.openState(); err != nil {
			return nil, err
		}
		opts := sess.state.options
		cfg.PersistWith = &opts
		cfg.Services = sess.state.services
	}
	if sess.chooser, err = chooser.New(cfg); err != nil {
		if sess.state != nil {
			_ = sess.state.close()
		}
		return nil, WrapError("create chooser", err)
	}
	return sess, nil
}

// buildFilter combines the --json filter and the query args. It returns nil
// when neither is given.
func (cli *CLI) buildFilter(cmd *cobra.Command, ch *chooser.Model, queries []string) (filter.Filter, error) {
	var parts []filter.Filter
	for _, q := range queries {
		f, err := ch.ParseFilter(q)
		if err != nil {
			return nil, NewFilterError(cmd.Name(), q, err)
		}
		parts = append(parts, f)
	}
	op := filter.And
	if or, _ := cmd.Flags().GetBool("or"); or {
		op = filter.Or
	}
	combined, err := filter.Combine(op, parts...)
	if err != nil {
		return nil, NewFilterError(cmd.Name(), strings.Join(queries, ", "), err)
	}

	raw, _ := cmd.Flags().GetString("json")
	if raw == "" {
		return combined, nil
	}
	jf, err := filter.Parse([]byte(raw))
	if err != nil {
		return nil, NewFilterError(cmd.Name(), raw, err)
	}
	var children []filter.Filter
	for _, f := range []filter.Filter{jf, combined} {
		if f != nil {
			children = append(children, f)
		}
	}
	return filter.Combine(filter.And, children...)
}

func (cli *CLI) runFilter(cmd *cobra.Command, args []string) error {
	remember, _ := cmd.Flags().GetBool("remember")
	sess, err := cli.openSession(remember)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	ch := sess.chooser

	if clear, _ := cmd.Flags().GetBool("clear"); clear {
		ch.Clear()
	}
	f, err := cli.buildFilter(cmd, ch, args)
	if err != nil {
		return err
	}
	if f != nil {
		if err := ch.SetValue(chips(f)...); err != nil {
			return NewFilterError(cmd.Name(), f.String(), err)
		}
	}
	if fav, _ := cmd.Flags().GetBool("favorite"); fav {
		if err := ch.AddFavorite(); err != nil {
			return WrapError("save favorite", err)
		}
	}
	cli.logger.Info("filter applied", "filter", ch.Value(), "records", sess.store.Count())

	if labels, _ := cmd.Flags().GetBool("labels"); labels {
		t := table{Header: []string{"chip"}}
		var data []string
		for _, chip := range ch.Value() {
			label := ch.Label(chip)
			t.Rows = append(t.Rows, []string{label})
			data = append(data, label)
		}
		t.Data = data
		return cli.output(cmd, t)
	}
	return cli.output(cmd, recordsTable(sess.store.Fields(), sess.store.Records()))
}

// chips splits a top-level AND into the chooser's chips
func chips(f filter.Filter) []filter.Filter {
	if c, ok := f.(*filter.CompoundFilter); ok && c.Op == filter.And {
		return c.Filters
	}
	return []filter.Filter{f}
}

// valueRow is one line of the values command
type valueRow struct {
	Value   any  `json:"value" yaml:"value"`
	Count   int  `json:"count" yaml:"count"`
	Checked bool `json:"checked" yaml:"checked"`
}

func (cli *CLI) runValues(cmd *cobra.Command, args []string) error {
	field, queries := args[0], args[1:]
	sess, err := cli.openSession(false)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	f, err := cli.buildFilter(cmd, sess.chooser, queries)
	if err != nil {
		return err
	}
	if err := sess.store.SetFilter(f); err != nil {
		return NewFilterError(cmd.Name(), f.String(), err)
	}

	grid, err := gridfilter.New(gridfilter.Config{
		Bind:     sess.store,
		TreeMode: cli.v.GetBool("tree"),
		Logger:   cli.logger,
	})
	if err != nil {
		return WrapError("create grid filter", err)
	}
	defer grid.Destroy()

	header, err := grid.NewHeaderFilter(field)
	if err != nil {
		return NewFilterError(cmd.Name(), field, err)
	}
	defer header.Destroy()
	if err := header.Open(); err != nil {
		return WrapError("open column filter", err)
	}

	tab := header.ValuesTab()
	if search, _ := cmd.Flags().GetString("search"); search != "" {
		tab.SetFilterText(search)
	}
	t := table{Header: []string{"value", "count", "checked"}}
	var rows []valueRow
	for _, v := range tab.VisibleValues() {
		row := valueRow{Value: plainValue(v), Count: tab.Count(v), Checked: tab.IsChecked(v)}
		rows = append(rows, row)
		t.Rows = append(t.Rows, []string{cell(v), strconv.Itoa(row.Count), strconv.FormatBool(row.Checked)})
	}
	t.Data = rows
	cli.logger.Info("values listed", "field", field, "values", len(rows), "total", tab.ValueCount())
	return cli.output(cmd, t)
}
