// Package importer loads quiz documents in bulk.
package importer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"studymed-quiz-service/internal/domain"
	"studymed-quiz-service/internal/engine"
)

//go:embed quiz.schema.json
var quizSchema []byte

const schemaURL = "schema://quiz.schema.json"

// ErrInvalidDocument is returned when the upload is not a valid quiz document.
var ErrInvalidDocument = errors.New("invalid quiz document")

// QuizWriter persists validated quizzes, replacing existing ones by id.
type QuizWriter interface {
	SaveQuizzes(ctx context.Context, quizzes []domain.Quiz) error
}

// Report summarizes an import.
type Report struct {
	Imported int      `json:"imported"`
	QuizIDs  []string `json:"quizIds"`
}

// Importer validates and stores uploaded quizzes.
type Importer struct {
	writer QuizWriter
	schema *jsonschema.Schema
	logger *zap.Logger
	newID  func() string
}

// Option customizes an Importer.
type Option func(*Importer)

// WithLogger sets the importer logger.
func WithLogger(l *zap.Logger) Option { return func(i *Importer) { i.logger = l } }

// WithIDGenerator replaces the generator used for missing ids.
func WithIDGenerator(gen func() string) Option { return func(i *Importer) { i.newID = gen } }

func New(writer QuizWriter, opts ...Option) (*Importer, error) {
	var doc any
	if err := json.Unmarshal(quizSchema, &doc); err != nil {
		return nil, fmt.Errorf("parse quiz schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add quiz schema: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile quiz schema: %w", err)
	}

	i := &Importer{
		writer: writer,
		schema: schema,
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Parse decodes an array of quizzes or a single quiz object, fills in missing
// ids and checks every quiz flattens cleanly.
func (i *Importer) Parse(data []byte) ([]domain.Quiz, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidDocument)
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	} else {
		raws = []json.RawMessage{trimmed}
	}
	if len(raws) == 0 {
		return nil, fmt.Errorf("%w: no quizzes in upload", ErrInvalidDocument)
	}

	quizzes := make([]domain.Quiz, 0, len(raws))
	for idx, raw := range raws {
		quiz, err := i.parseOne(raw)
		if err != nil {
			return nil, fmt.Errorf("quiz %d: %w", idx, err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, nil
}

func (i *Importer) parseOne(raw json.RawMessage) (domain.Quiz, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := i.schema.Validate(doc); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, err
	}
	i.assignIDs(&quiz)
	if err := engine.Validate(quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func (i *Importer) assignIDs(quiz *domain.Quiz) {
	if quiz.ID == "" {
		quiz.ID = i.newID()
	}
	for n := range quiz.Questions {
		node := &quiz.Questions[n]
		switch {
		case node.Single != nil:
			i.assignQuestionIDs(node.Single)
		case node.Group != nil:
			if node.Group.ID == "" {
				node.Group.ID = i.newID()
			}
			for c := range node.Group.ChildQuestions {
				i.assignQuestionIDs(&node.Group.ChildQuestions[c])
			}
		}
	}
}

func (i *Importer) assignQuestionIDs(q *domain.Question) {
	if q.ID == "" {
		q.ID = i.newID()
	}
	for o := range q.Options {
		if q.Options[o].ID == "" {
			q.Options[o].ID = i.newID()
		}
	}
}

// Import parses data and stores every quiz. Nothing is stored if any quiz is invalid.
func (i *Importer) Import(ctx context.Context, data []byte) (Report, error) {
	quizzes, err := i.Parse(data)
	if err != nil {
		i.logger.Warn("import rejected", zap.Error(err))
		return Report{}, err
	}
	if err := i.writer.SaveQuizzes(ctx, quizzes); err != nil {
		return Report{}, fmt.Errorf("save quizzes: %w", err)
	}

	report := Report{Imported: len(quizzes), QuizIDs: make([]string, len(quizzes))}
	for idx, quiz := range quizzes {
		report.QuizIDs[idx] = quiz.ID
	}
	i.logger.Info("quizzes imported", zap.Int("count", report.Imported), zap.Strings("quiz_ids", report.QuizIDs))
	return report, nil
}
