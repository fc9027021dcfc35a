package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

const (
	maxPortfolioURLLength = 500
	maxExperienceYears    = 50
	minSpecialization     = 5
	maxSpecialization     = 200
	minMotivation         = 50
	maxMotivation         = 1000
)

// ApplicationService handles customers applying to become designers and the
// admin review that promotes them.
type ApplicationService struct {
	*workflow
}

func NewApplicationService(store db.Store, logger *slog.Logger) *ApplicationService {
	return &ApplicationService{workflow: newWorkflow(store, nil, logger, Config{})}
}

type ApplyDesignerInput struct {
	PortfolioURL    string `json:"portfolio_url"`
	ExperienceYears int    `json:"experience_years"`
	Specialization  string `json:"specialization"`
	Motivation      string `json:"why_designer"`
}

func (in ApplyDesignerInput) normalized() ApplyDesignerInput {
	in.PortfolioURL = strings.TrimSpace(in.PortfolioURL)
	in.Specialization = strings.TrimSpace(in.Specialization)
	in.Motivation = strings.TrimSpace(in.Motivation)
	return in
}

func validateApplication(in ApplyDesignerInput) error {
	if in.PortfolioURL != "" {
		if utf8.RuneCountInString(in.PortfolioURL) > maxPortfolioURLLength {
			return validationf("portfolio URL must be at most %d characters", maxPortfolioURLLength)
		}
		u, err := url.Parse(in.PortfolioURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return validationf("portfolio URL must be an http or https link")
		}
	}
	if in.ExperienceYears < 0 || in.ExperienceYears > maxExperienceYears {
		return validationf("experience must be between 0 and %d years", maxExperienceYears)
	}
	if n := utf8.RuneCountInString(in.Specialization); n < minSpecialization || n > maxSpecialization {
		return validationf("specialization must be %d to %d characters", minSpecialization, maxSpecialization)
	}
	if n := utf8.RuneCountInString(in.Motivation); n < minMotivation || n > maxMotivation {
		return validationf("tell us why you want to design in %d to %d characters", minMotivation, maxMotivation)
	}
	return nil
}

// ApplyDesigner files a pending designer application for the customer. It is
// refused for users who already design or already have an open application.
func (s *ApplicationService) ApplyDesigner(ctx context.Context, principal authz.Principal, input ApplyDesignerInput) (*models.DesignerApplication, error) {
	input = input.normalized()
	if err := validateApplication(input); err != nil {
		return nil, err
	}

	var app *models.DesignerApplication
	err := s.run(ctx, transition{
		action:     "apply_designer",
		capability: authz.ApplyAsDesigner,
		principal:  principal,
		subject:    models.SubjectApplication,
	}, func(ctx context.Context, tx db.Tx) error {
		user, err := tx.GetUser(ctx, principal.UserID)
		if err != nil {
			return err
		}
		if user.Role != models.RoleCustomer {
			return preconditionf("you are already a %s", user.Role)
		}

		app = &models.DesignerApplication{
			UserID:          user.ID,
			PortfolioURL:    input.PortfolioURL,
			ExperienceYears: input.ExperienceYears,
			Specialization:  input.Specialization,
			Motivation:      input.Motivation,
			Status:          models.ApplicationPending,
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return preconditionf("you already have a pending designer application")
			}
			return fmt.Errorf("failed to create designer application: %w", err)
		}
		return s.record(ctx, tx, principal, models.SubjectApplication, app.ID, "Designer application submitted", map[string]any{
			"status": string(app.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

type ReviewApplicationInput struct {
	Decision   ReviewDecision `json:"action"`
	AdminNotes string         `json:"admin_notes"`
}

// ReviewDesignerApplication decides a pending application. Approval promotes
// the applicant to designer; the role change, the new status and the audit
// entry commit together.
func (s *ApplicationService) ReviewDesignerApplication(ctx context.Context, principal authz.Principal, appID int64, input ReviewApplicationInput) (*models.DesignerApplication, error) {
	var target models.ApplicationStatus
	switch input.Decision {
	case DecisionApprove:
		target = models.ApplicationApproved
	case DecisionReject:
		target = models.ApplicationRejected
	default:
		return nil, validationf("review action must be %q or %q", DecisionApprove, DecisionReject)
	}

	var app *models.DesignerApplication
	err := s.run(ctx, transition{
		action:     "review_designer_application",
		capability: authz.ReviewApplications,
		principal:  principal,
		subject:    models.SubjectApplication,
		subjectID:  appID,
	}, func(ctx context.Context, tx db.Tx) error {
		var err error
		app, err = tx.LockApplication(ctx, appID)
		if errors.Is(err, db.ErrNotFound) {
			return notFoundf("designer application #%d not found", appID)
		}
		if err != nil {
			return err
		}
		if !app.Status.CanTransitionTo(target) {
			return preconditionf("designer application #%d is already %s", appID, app.Status)
		}

		previous := app.Status
		reviewer := principal.UserID
		app.Status = target
		app.AdminNotes = strings.TrimSpace(input.AdminNotes)
		app.ReviewedBy = &reviewer
		if err := tx.UpdateApplication(ctx, app, previous); err != nil {
			return fmt.Errorf("failed to update designer application: %w", err)
		}

		action := "Designer application rejected"
		if target == models.ApplicationApproved {
			if err := tx.SetUserRole(ctx, app.UserID, models.RoleDesigner); err != nil {
				return fmt.Errorf("failed to promote user %d: %w", app.UserID, err)
			}
			action = "Designer application approved"
		}
		return s.record(ctx, tx, principal, models.SubjectApplication, app.ID, action, map[string]any{
			"from":    string(previous),
			"to":      string(app.Status),
			"user_id": app.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}
