// Package submit provides the submit command
package submit

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldscan/fieldscan/internal/app"
	"github.com/fieldscan/fieldscan/internal/checklist"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/offline"
)

// Command creates the submit command
func Command(loader *app.Loader) *cobra.Command {
	var (
		performer   string
		offlineOnly bool
	)
	cmd := &cobra.Command{
		Use:   "submit <file.yaml|->",
		Short: "Submit a completed checklist",
		Long: `Sends the submission when the backend is reachable. Otherwise, or when sending fails,
the submission is stored in the pending queue and sent by a later drain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readSubmission(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := loader.Open(ctx)
			if err != nil {
				return err
			}

			if performer != "" {
				s.PerformedBy = performer
			}
			if s.PerformedBy == "" {
				if creds, ok := a.Auth.Current(); ok {
					s.PerformedBy = creds.Subject
				}
			}
			if s.CompletedAt.IsZero() {
				s.CompletedAt = time.Now().UTC()
			}

			if !offlineOnly {
				a.Monitor.Check(ctx)
			}
			receipt, err := a.Offline.Submit(ctx, s)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			counts := s.Counts()
			switch receipt.Outcome {
			case offline.OutcomeSent:
				fmt.Fprintf(out, "sent %s: %d ok, %d deviation, %d not assessed",
					s.EquipmentCode, counts[checklist.StatusOK], counts[checklist.StatusDeviation], counts[checklist.StatusNotAssessed])
				if receipt.JobID != "" {
					fmt.Fprintf(out, " (job %s)", receipt.JobID)
				}
				fmt.Fprintln(out)
			case offline.OutcomeQueued:
				fmt.Fprintf(out, "queued %s as #%d (%d pending)\n", s.EquipmentCode, receipt.QueueID, a.Offline.PendingCount())
				if receipt.SendErr != nil {
					fmt.Fprintf(out, "send failed: %v\n", receipt.SendErr)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&performer, "performer", "", "Technician identity (default: logged-in subject)")
	cmd.Flags().BoolVar(&offlineOnly, "offline", false, "Queue without contacting the backend")
	return cmd
}

func readSubmission(stdin io.Reader, path string) (*checklist.Submission, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	var s checklist.Submission
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.New(err).
			Component("cli").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	for i := range s.Results {
		status, err := checklist.ParseStatus(string(s.Results[i].Status))
		if err != nil {
			return nil, err
		}
		s.Results[i].Status = status
	}
	return &s, nil
}
