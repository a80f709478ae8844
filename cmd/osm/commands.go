package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/huckl3b3rry/osm/internal/db"
	"github.com/huckl3b3rry/osm/internal/session"
	"github.com/huckl3b3rry/osm/internal/ui"
)

func newPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path [project]",
		Short: "Print the database path for a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.cfg.Locator().ProjectDBPath(projectArg(args))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init [project]",
		Short: "Create a project database and its tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project := projectArg(args)
			if err := a.manager.InitProject(cmd.Context(), project); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.TitleStyle.Render(project))
			fmt.Fprintln(out, ui.KeyValue("path", a.store.Path()))
			for _, table := range db.Tables {
				n, err := a.store.TableCount(cmd.Context(), table)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, ui.KeyValue(table, fmt.Sprint(n)))
			}
			return nil
		},
	}
}

func newStartCmd(a *app) *cobra.Command {
	var (
		room     string
		speakers int
		queue    []int
	)

	cmd := &cobra.Command{
		Use:   "start [project]",
		Short: "Record a calibration session for a room",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := a.manager.InitProject(ctx, projectArg(args)); err != nil {
				return err
			}

			cancel := a.manager.Subscribe(func(ev session.Event) {
				active := ev.Kind == session.SessionStarted
				fmt.Fprintln(out, ui.SessionStatus(ev.SessionID, active))
			})
			defer cancel()

			id, err := a.manager.StartSession(ctx, room, speakers)
			if err != nil {
				return err
			}

			tasks := make([]session.MeasurementTask, 0, len(queue))
			for _, spk := range queue {
				tasks = append(tasks, session.MeasurementTask{
					SpeakerID: spk,
					Note:      fmt.Sprintf("session %d speaker %d", id, spk),
				})
			}
			a.manager.QueueMeasurements(tasks)
			fmt.Fprintln(out, ui.KeyValue("queued", fmt.Sprint(len(a.manager.PendingMeasurements()))))

			// The session ends with the process.
			a.manager.StopSession()
			return nil
		},
	}

	cmd.Flags().StringVar(&room, "room", "Room", "room name")
	cmd.Flags().IntVar(&speakers, "speakers", 2, "number of speakers")
	cmd.Flags().IntSliceVar(&queue, "queue", nil, "speaker ids to queue for measurement")
	return cmd
}

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions [project]",
		Short: "List recorded sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.InitProject(cmd.Context(), projectArg(args)); err != nil {
				return err
			}

			sessions, err := a.store.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, ui.DimStyle.Render("No sessions yet"))
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintln(out, ui.SessionLine(s))
			}
			return nil
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "check [project]",
		Short: "Write a test session to verify the database is usable",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.InitProject(cmd.Context(), projectArg(args)); err != nil {
				return err
			}

			id, err := a.store.InsertTestSession(cmd.Context(), note)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.KeyValue("test session", fmt.Sprint(id)))
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "note stored with the test session")
	return cmd
}

func newAnalyzeCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [recording]",
		Short: "Suggest an EQ adjustment for a recording",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recording, err := readRecording(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RecommendationStyle.Render(session.AnalyzeStub(recording)))
			return nil
		},
	}
}

// readRecording reads the named file, or stdin for "-" or no argument.
func readRecording(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read recording: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return data, nil
}
