package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdfformfiller/internal/app"
	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

var fillOut string

var fillCmd = &cobra.Command{
	Use:   "fill <form.pdf>",
	Short: "Fill a PDF form interactively on the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := app.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		src := args[0]
		f, err := os.Open(src)
		if err != nil {
			return eris.Wrapf(err, "open %s", src)
		}
		sess, err := env.Service.Start(ctx, filepath.Base(src), f)
		f.Close()
		if err != nil {
			return err
		}

		out := fillOut
		if out == "" {
			out = filepath.Join(filepath.Dir(src), "completed_"+filepath.Base(src))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s has %d fields to fill.\n", sess.Filename, sess.TotalFields)
		return converse(ctx, env.Service, sess.ID, cmd.InOrStdin(), cmd.OutOrStdout(), out)
	},
}

// conversation is the part of the session service the terminal loop uses.
type conversation interface {
	NextQuestion(ctx context.Context, id string) (models.QuestionResponse, error)
	SubmitAnswer(ctx context.Context, id, fieldName, raw string) (models.AnswerResponse, error)
	Complete(ctx context.Context, id string) (models.CompletionResponse, error)
	Download(ctx context.Context, id string) (io.ReadCloser, string, error)
}

// converse asks every remaining question, reading one answer per line,
// then writes the flattened form to outPath.
func converse(ctx context.Context, c conversation, id string, in io.Reader, out io.Writer, outPath string) error {
	scanner := bufio.NewScanner(in)
	for {
		q, err := c.NextQuestion(ctx, id)
		if err != nil {
			return err
		}
		if q.IsComplete {
			fmt.Fprintln(out, q.Question)
			break
		}

		fmt.Fprintln(out, q.Question)
		if len(q.Choices) > 0 {
			fmt.Fprintf(out, "  options: %s\n", strings.Join(q.Choices, ", "))
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return eris.Wrap(err, "read answer")
			}
			return eris.New("input closed before the form was complete")
		}

		resp, err := c.SubmitAnswer(ctx, id, *q.FieldName, scanner.Text())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  recorded: %q\n", resp.ProcessedValue)
	}

	if _, err := c.Complete(ctx, id); err != nil {
		return err
	}
	rc, _, err := c.Download(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	dst, err := os.Create(outPath)
	if err != nil {
		return eris.Wrapf(err, "create %s", outPath)
	}
	if _, err := io.Copy(dst, rc); err != nil {
		_ = dst.Close()
		return eris.Wrapf(err, "write %s", outPath)
	}
	if err := dst.Close(); err != nil {
		return eris.Wrapf(err, "close %s", outPath)
	}
	fmt.Fprintf(out, "Saved %s\n", outPath)
	return nil
}

func init() {
	fillCmd.Flags().StringVarP(&fillOut, "out", "o", "", "output path (default completed_<name> next to the input)")
	rootCmd.AddCommand(fillCmd)
}
