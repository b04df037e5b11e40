package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/forge/internal/engine"
	"github.com/born-ml/forge/internal/envconfig"
	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "v0.1.0-dev"

// NewCLI builds the forge command tree.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "forge",
		Short:         "Inspect and convert Forge models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if v, _ := cmd.Flags().GetBool("version"); v {
				versionHandler(cmd, args)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	inspectCmd := &cobra.Command{
		Use:   "inspect MODEL_PATH",
		Short: "Show a model's metadata, inputs, outputs and parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
	addLoadFlags(inspectCmd)

	castCmd := &cobra.Command{
		Use:   "cast MODEL_PATH",
		Short: "Convert a model's parameters to another data type",
		Args:  cobra.ExactArgs(1),
		RunE:  CastHandler,
	}
	addLoadFlags(castCmd)
	castCmd.Flags().String("to", "", "Target data type, e.g. float16")
	castCmd.Flags().StringP("output", "o", "", "Directory to save the converted model to")
	_ = castCmd.MarkFlagRequired("to")
	_ = castCmd.MarkFlagRequired("output")

	artifactsCmd := &cobra.Command{
		Use:     "artifacts MODEL_PATH",
		Aliases: []string{"ls"},
		Short:   "List the artifacts shipped with a model",
		Args:    cobra.ExactArgs(1),
		RunE:    ArtifactsHandler,
	}
	addLoadFlags(artifactsCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the current engine",
		Args:  cobra.NoArgs,
		RunE:  DevicesHandler,
	}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show configuration environment variables",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}

	envVars := envconfig.AsMap()
	loadEnvs := []envconfig.EnvVar{
		envVars["FORGE_ENGINE"],
		envVars["FORGE_DEBUG"],
		envVars["FORGE_MEMORY_LIMIT"],
		envVars["FORGE_VERIFY_CHECKSUM"],
	}
	for _, cmd := range []*cobra.Command{inspectCmd, castCmd, artifactsCmd, devicesCmd} {
		switch cmd {
		case castCmd:
			appendEnvDocs(cmd, append(slices.Clone(loadEnvs), envVars["FORGE_COMPRESSION"]))
		case devicesCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["FORGE_ENGINE"], envVars["FORGE_DEVICE"]})
		default:
			appendEnvDocs(cmd, loadEnvs)
		}
	}

	rootCmd.AddCommand(
		inspectCmd,
		castCmd,
		artifactsCmd,
		devicesCmd,
		envCmd,
		versionCmd,
	)
	return rootCmd
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func addLoadFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Model name (default: derived from the path)")
	cmd.Flags().Int("epoch", -1, "Parameter file epoch to load (default: latest)")
	cmd.Flags().Bool("no-verify", false, "Skip parameter checksum verification")
}

// loadModel creates a model with the current engine and loads path into it.
// The caller closes the model.
func loadModel(cmd *cobra.Command, path string) (*model.Model, error) {
	name, _ := cmd.Flags().GetString("name")
	epoch, _ := cmd.Flags().GetInt("epoch")
	noVerify, _ := cmd.Flags().GetBool("no-verify")

	logger := logging.NewText(cmd.ErrOrStderr(), envconfig.LogLevel())
	m, err := engine.NewModel(name, model.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	opts := model.LoadOptions{Name: name, Options: map[string]string{}}
	if epoch >= 0 {
		opts.Options[model.OptionEpoch] = strconv.Itoa(epoch)
	}
	if noVerify {
		opts.Options[model.OptionVerifyChecksum] = "false"
	}
	if err := m.Load(path, opts); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	if header != nil {
		table.SetHeader(header)
	}
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// InspectHandler prints model metadata, descriptors and parameters.
func InspectHandler(cmd *cobra.Command, args []string) error {
	m, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	w := cmd.OutOrStdout()
	section := func(title string, header []string, rows [][]string) {
		fmt.Fprintln(w, " ", title)
		table := newTable(w, header)
		table.AppendBulk(rows)
		table.Render()
		fmt.Fprintln(w)
	}

	block := m.Block()
	if block == nil {
		return fmt.Errorf("model %s has no block", m.Name())
	}

	epoch, _ := m.Property(model.PropertyEpoch)
	section("Model", nil, [][]string{
		{"", "name", m.Name()},
		{"", "device", m.Device().String()},
		{"", "data type", m.DataType().String()},
		{"", "block", block.Kind()},
		{"", "epoch", epoch},
	})

	var sig [][]string
	for _, d := range m.DescribeInput() {
		sig = append(sig, []string{"", "input", d.Name, d.DType.String(), d.Shape.String()})
	}
	for _, d := range m.DescribeOutput() {
		sig = append(sig, []string{"", "output", d.Name, d.DType.String(), d.Shape.String()})
	}
	section("Signature", nil, sig)

	var params [][]string
	var total int
	for pair := block.Parameters().Oldest(); pair != nil; pair = pair.Next() {
		t := pair.Value.Tensor()
		total += t.Shape().NumElements()
		params = append(params, []string{"", pair.Key, t.DType().String(), t.Shape().String()})
	}
	params = append(params, []string{"", "total", strconv.Itoa(total), ""})
	section("Parameters", nil, params)

	var props [][]string
	for _, k := range m.PropertyKeys() {
		if k == model.PropertyEpoch {
			continue
		}
		v, _ := m.Property(k)
		props = append(props, []string{"", k, v})
	}
	if len(props) > 0 {
		section("Properties", nil, props)
	}
	return nil
}

// CastHandler loads a model, casts it and saves it to the output directory.
func CastHandler(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetString("to")
	out, _ := cmd.Flags().GetString("output")
	dt, err := tensor.ParseDataType(to)
	if err != nil {
		return err
	}

	m, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	from := m.DataType()
	if err := m.Cast(dt); err != nil {
		return err
	}
	if err := m.Save(out, m.Name()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cast %s from %s to %s, saved to %s\n", m.Name(), from, dt, out)
	return nil
}

// ArtifactsHandler lists the artifacts of a model with their sizes.
func ArtifactsHandler(cmd *cobra.Command, args []string) error {
	m, err := loadModel(cmd, args[0])
	if err != nil {
		return err
	}
	defer m.Close()

	names, err := m.ArtifactNames()
	if err != nil {
		return err
	}

	var data [][]string
	for _, name := range names {
		u, err := m.ArtifactURL(name)
		if err != nil || u == nil {
			continue
		}
		size := "-"
		if fi, err := os.Stat(filepath.FromSlash(u.Path)); err == nil {
			size = strconv.FormatInt(fi.Size(), 10)
		}
		data = append(data, []string{name, size, u.String()})
	}

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "SIZE", "URL"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// DevicesHandler lists the devices of the current engine.
func DevicesHandler(cmd *cobra.Command, _ []string) error {
	e, err := engine.Instance()
	if err != nil {
		return err
	}

	var data [][]string
	for _, d := range e.Devices() {
		data = append(data, []string{
			d.Device.String(),
			d.Description,
			strconv.Itoa(d.Cores),
			strings.Join(d.Features, ","),
		})
	}

	table := newTable(cmd.OutOrStdout(), []string{"DEVICE", "DESCRIPTION", "CORES", "FEATURES"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

// EnvHandler prints every configuration variable with its current value.
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var data [][]string
	for _, k := range keys {
		v := vars[k]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "forge version %s\n", version)
	if e, err := engine.Instance(); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "engine %s version %s\n", e.Name(), e.Version())
	}
}
