package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/studentid/internal/audit"
	"github.com/saturnino-fabrica-de-software/studentid/internal/repository"
	"github.com/saturnino-fabrica-de-software/studentid/internal/service"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

var enrollStudent string

var enrollCmd = &cobra.Command{
	Use:   "enroll --student <id> <image>",
	Short: "Register or replace a student's reference face",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, err := uuid.Parse(enrollStudent)
		if err != nil {
			return fmt.Errorf("--student: %w", err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		logs := repository.NewRecognitionLogRepository(app.pool)
		svc := service.NewRecognitionService(
			app.students,
			logs,
			app.stack.Pipeline,
			app.stack.Matcher,
			app.stack.Cache,
			app.stack.Images,
			audit.NewRecorder(logs, audit.NewSlogLogger(app.logger), app.stack.Pipeline.Model()),
			token.NewIssuer(token.Config{
				Secret:     app.cfg.JWTSecret,
				Issuer:     app.cfg.JWTIssuer,
				AccessTTL:  app.cfg.JWTAccessTTL,
				RefreshTTL: app.cfg.JWTRefreshTTL,
			}),
			app.logger,
		)

		student, err := svc.RegisterFace(cmd.Context(), studentID, data)
		if err != nil {
			return err
		}

		fmt.Printf("registered %s %s (%s): %s\n", student.FirstName, student.LastName, student.MatricNumber, student.FaceImageRef)
		return nil
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollStudent, "student", "s", "", "Student ID (UUID)")
	_ = enrollCmd.MarkFlagRequired("student")
}
