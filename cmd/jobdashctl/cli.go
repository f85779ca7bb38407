package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/nixpig/jobdash/internal/grpcapi"
	"github.com/nixpig/jobdash/internal/tlsconfig"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// TODO: Inject version at build time.
const version = "0.1.0"

type config struct {
	server     string
	serverName string
	caCertPath string
	certPath   string
	keyPath    string
}

type cli struct {
	client *grpcapi.Client
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCmd() *cobra.Command {
	cfg := &config{}

	command := &cobra.Command{
		Use:          "jobdashctl",
		Short:        "CLI for inspecting a jobdash server",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
				CertPath:   cfg.certPath,
				KeyPath:    cfg.keyPath,
				CACertPath: cfg.caCertPath,
				ServerName: cfg.serverName,
			})
			if err != nil {
				return err
			}

			c.client, err = grpcapi.Dial(cfg.server, tlsConfig)

			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.client == nil {
				return nil
			}

			// Connection needs to remain open for duration of any child commands.
			return c.client.Close()
		},
	}

	command.AddCommand(
		c.routesCmd(),
		c.jobsCmd(),
		c.statusCmd(),
		c.stopCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&cfg.server,
		"server",
		"localhost:8443",
		"Address of the jobdash gRPC server",
	)

	command.PersistentFlags().StringVar(
		&cfg.serverName,
		"server-name",
		"localhost",
		"Server name to verify the server certificate against",
	)

	command.PersistentFlags().StringVar(
		&cfg.certPath,
		"cert-path",
		"",
		"Path to client TLS certificate",
	)

	command.PersistentFlags().StringVar(
		&cfg.keyPath,
		"key-path",
		"",
		"Path to client TLS private key",
	)

	command.PersistentFlags().StringVar(
		&cfg.caCertPath,
		"ca-cert-path",
		"",
		"Path to CA certificate, enables TLS",
	)

	return command
}

func (c *cli) routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "routes",
		Short:   "List registered pages and jobs",
		Example: "  jobdashctl routes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.client.ListRoutes(cmd.Context())
			if err != nil {
				return mapError(err)
			}

			return writeRoutes(cmd.OutOrStdout(), doc)
		},
	}
}

func (c *cli) jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "jobs",
		Short:   "List job instances",
		Example: "  jobdashctl jobs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := c.client.ListJobs(cmd.Context())
			if err != nil {
				return mapError(err)
			}

			var jobs []*structpb.Struct
			for _, v := range doc.GetFields()["jobs"].GetListValue().GetValues() {
				jobs = append(jobs, v.GetStructValue())
			}

			return writeJobs(cmd.OutOrStdout(), jobs)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	var showResult bool

	command := &cobra.Command{
		Use:     "status [flags] JOB_ID",
		Short:   "Query status of job",
		Example: "  jobdashctl status 2 --result",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			doc, err := c.client.GetJob(cmd.Context(), id)
			if err != nil {
				return mapError(err)
			}

			if err := writeJobs(cmd.OutOrStdout(), []*structpb.Struct{doc}); err != nil {
				return err
			}

			if showResult {
				fmt.Fprintln(cmd.OutOrStdout(), doc.GetFields()["result"].GetStringValue())
			}

			return nil
		},
	}

	command.Flags().BoolVar(&showResult, "result", false, "Print the latest result")

	return command
}

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stop [flags] JOB_ID",
		Short:   "Stop a running job",
		Example: "  jobdashctl stop 2",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if err := c.client.StopJob(cmd.Context(), id); err != nil {
				return mapError(err)
			}

			return nil
		},
	}
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid job id '%s'", s)
	}

	return id, nil
}

// TODO: Only output headers if TTY. Or could add a flag like --plain or
// --skip-headers to hide headers.

func writeJobs(out io.Writer, jobs []*structpb.Struct) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID\tNAME\tSTARTED\tSTATE\tFINISHED\tSTOPPED\t\n")

	for _, job := range jobs {
		f := job.GetFields()

		fmt.Fprintf(
			w,
			"%d\t%s\t%s\t%s\t%t\t%t\t\n",
			uint64(f["id"].GetNumberValue()),
			f["name"].GetStringValue(),
			f["started"].GetStringValue(),
			f["state"].GetStringValue(),
			f["finished"].GetBoolValue(),
			f["stopped"].GetBoolValue(),
		)
	}

	return w.Flush()
}

func writeRoutes(out io.Writer, doc *structpb.Struct) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "URL\tKIND\tJOB\tSYNC\t\n")

	jobs := make(map[string]*structpb.Struct)
	for _, v := range doc.GetFields()["jobs"].GetListValue().GetValues() {
		d := v.GetStructValue()
		jobs[d.GetFields()["url"].GetStringValue()] = d
	}

	for _, v := range doc.GetFields()["routes"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		url := f["url"].GetStringValue()

		name, sync := "-", "-"
		if d, ok := jobs[url]; ok {
			name = d.GetFields()["name"].GetStringValue()
			sync = strconv.FormatBool(d.GetFields()["synchronous"].GetBoolValue())
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", url, f["kind"].GetStringValue(), name, sync)
	}

	return w.Flush()
}

// mapError translates gRPC errors to human-readable messages.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return errors.New("not found")
	case codes.FailedPrecondition:
		return fmt.Errorf("%s", st.Message())
	case codes.Unauthenticated:
		return errors.New("not authenticated")
	case codes.InvalidArgument:
		return fmt.Errorf("%s", st.Message())
	case codes.Unavailable:
		return errors.New("server unavailable")
	default:
		return fmt.Errorf("%s", st.Message())
	}
}
