// Package report generates the personalized AI report for a finished risk
// assessment. It is the slow companion to the chat pipeline: same model, same
// normalization contract, longer timeout, and errors surface to the caller
// instead of degrading to a fallback reply.
package report

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/kardiahealth/kardia/internal/ai"
	"github.com/kardiahealth/kardia/internal/cache"
	"github.com/kardiahealth/kardia/internal/chat"
	"github.com/kardiahealth/kardia/internal/reply"
	"github.com/kardiahealth/kardia/internal/store"
)

// Store is what the generator needs from persistence.
type Store interface {
	chat.ContextStore
	GetAssessment(userID, id string) (*store.RiskAssessment, error)
	SaveAssessmentReport(userID, id string, report json.RawMessage) error
}

type Service struct {
	store  Store
	client chat.ModelClient
	inval  *cache.Invalidator
	asm    *chat.Assembler
	log    *zap.Logger
}

func NewService(st Store, client chat.ModelClient, c cache.Store, log *zap.Logger) *Service {
	return &Service{
		store:  st,
		client: client,
		inval:  cache.NewInvalidator(c, log),
		asm:    chat.NewAssembler(st, log),
		log:    log,
	}
}

// Personalize asks the model for a full report on one assessment, stores it
// on the assessment record, and invalidates the dashboard views that embed
// assessment details.
func (s *Service) Personalize(ctx context.Context, userID, assessmentID string) (reply.Reply, error) {
	assessment, err := s.store.GetAssessment(userID, assessmentID)
	if err != nil {
		return reply.Reply{}, fmt.Errorf("loading assessment: %w", err)
	}

	c := s.asm.Assemble(userID, "", "")
	prompt := ai.BuildReportPrompt(c.Language, c.UserContext, assessment.RiskPercentage, assessment.RiskCategory)

	raw, err := s.client.Generate(ctx, prompt)
	if err != nil {
		s.log.Error("report model call failed",
			zap.String("user_id", userID),
			zap.String("assessment_id", assessmentID),
			zap.Error(err))
		return reply.Reply{}, err
	}

	r, err := ai.Normalize(raw)
	if err != nil {
		s.log.Error("report normalization failed",
			zap.String("assessment_id", assessmentID),
			zap.Error(err))
		return reply.Reply{}, err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return reply.Reply{}, fmt.Errorf("marshaling report: %w", err)
	}
	if err := s.store.SaveAssessmentReport(userID, assessmentID, data); err != nil {
		return reply.Reply{}, &ai.PersistenceFailure{Op: "save assessment report", Err: err}
	}
	s.inval.AssessmentsChanged(userID)

	return r, nil
}
