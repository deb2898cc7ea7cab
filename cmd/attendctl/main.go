// Command attendctl administers users and attendance sheets from the shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sheetattend/internal/attendance"
	"sheetattend/internal/config"
	"sheetattend/internal/history"
	"sheetattend/internal/sheets"
	"sheetattend/internal/upload"
	"sheetattend/internal/users"
)

type services struct {
	attendance *attendance.Service
	history    *history.Store
	users      *users.Store
	upload     *upload.Service
}

func connect(ctx context.Context) (*services, error) {
	cfg := config.Load()
	g, err := sheets.NewGoogle(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	values := g.WithInput(sheets.InputUserEntered)
	logs := g.WithInput(sheets.InputRaw)
	hist := history.NewStore(logs, cfg.HistorySheetID, "Sheet1")
	return &services{
		attendance: attendance.NewService(values, attendance.Options{Tab: cfg.SheetTab, Sessions: hist}),
		history:    hist,
		users:      users.NewStore(logs, cfg.UserSheetID, "Sheet1", cfg.PasswordScheme),
		upload:     upload.NewService(values, hist, nil, cfg.SheetTab),
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "attendctl",
		Short:         "Administer the spreadsheet attendance service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(userCmd(), sheetCmd(), historyCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func userCmd() *cobra.Command {
	var nu users.NewUser
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			u, err := svc.users.Create(cmd.Context(), nu)
			if err != nil {
				return err
			}
			fmt.Printf("created user %s (%s)\n", u.Username, u.Name)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&nu.Username, "username", "", "login name")
	f.StringVar(&nu.Name, "name", "", "display name")
	f.StringVar(&nu.RollNumber, "roll", "", "roll number")
	f.StringVar(&nu.Department, "department", "", "department")
	f.StringVar(&nu.Team, "team", "", "team")
	f.StringVar(&nu.Role, "role", "", "role")
	f.StringVar(&nu.Password, "password", "", "password")

	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(create)
	return cmd
}

func sheetCmd() *cobra.Command {
	validate := &cobra.Command{
		Use:   "validate <sheet link>",
		Short: "Check a sheet against the attendance template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			n, err := svc.upload.Validate(cmd.Context(), args[0])
			var (
				hdr  *upload.HeaderError
				rows upload.RowErrors
			)
			switch {
			case errors.As(err, &hdr):
				return fmt.Errorf("%s: %s (expected %v, received %v)", hdr.Error(), hdr.Reason, hdr.Expected, hdr.Received)
			case errors.As(err, &rows):
				for _, r := range rows {
					fmt.Fprintf(os.Stderr, "row %d %s: %s (%q)\n", r.Row, r.Column, r.Reason, r.Value)
				}
				return rows
			case err != nil:
				return err
			}
			fmt.Printf("ok: %d rows validated\n", n)
			return nil
		},
	}

	var out string
	exp := &cobra.Command{
		Use:   "export <spreadsheet id>",
		Short: "Download present and all students as a zip of workbooks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.attendance.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = res.Filename
			}
			if err := os.WriteFile(out, res.Data, 0644); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			fmt.Printf("wrote %s (%d present of %d)\n", out, res.PresentCount, res.TotalCount)
			return nil
		},
	}
	exp.Flags().StringVarP(&out, "output", "o", "", "output file (default: generated name)")

	stats := &cobra.Command{
		Use:   "stats <spreadsheet id>",
		Short: "Print attendance counts as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			st, _, err := svc.attendance.Stats(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st.Counts)
		},
	}

	cmd := &cobra.Command{Use: "sheet", Short: "Inspect attendance sheets"}
	cmd.AddCommand(validate, exp, stats)
	return cmd
}

func historyCmd() *cobra.Command {
	list := &cobra.Command{
		Use:   "list",
		Short: "List uploaded sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			recs, err := svc.history.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SHEET ID\tEVENT\tUPLOADED BY\tUPLOADED AT\tSTATUS")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.SheetID, r.EventName, r.UploadedBy, r.UploadedAt, r.Status)
			}
			return w.Flush()
		},
	}
	cmd := &cobra.Command{Use: "history", Short: "Browse the upload history"}
	cmd.AddCommand(list)
	return cmd
}
