package question

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/quizparty/quizparty/logger"
)

// The question bank is a semicolon-separated CSV with a header row:
//
//	question_text;correct_option;n_of_other_options;other_option1..5;
//	time_sec;has_image;time_for_image;path_to_image
//
// Rows that cannot be parsed are skipped with a warning rather than
// failing the whole load.

// Defaults fills in the per-question timings a bank row leaves out.
// Zero fields fall back to the package constants.
type Defaults struct {
	AnswerSeconds int
	ImageSeconds  int
}

func (d Defaults) filled() Defaults {
	if d.AnswerSeconds <= 0 {
		d.AnswerSeconds = DefaultAnswerSeconds
	}
	if d.ImageSeconds <= 0 {
		d.ImageSeconds = DefaultImageSeconds
	}
	return d
}

// Load reads the bank at path. On any failure it falls back to the
// built-in placeholder set so a game can always start.
func Load(path string, d Defaults) []Question {
	qs, err := LoadCSV(path, d)
	if err != nil {
		logger.Log.Warnf("Falling back to placeholder questions: %v", err)
		return Placeholder(d)
	}
	return qs
}

// LoadCSV parses the bank, shuffles each question's options (remapping
// the correct index atomically) and shuffles question order.
func LoadCSV(path string, d Defaults) ([]Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question bank: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse question bank %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("question bank %s has no data rows", path)
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		cols[strings.TrimSpace(h)] = i
	}

	d = d.filled()
	var questions []Question
	for line, rec := range records[1:] {
		q, err := parseRow(cols, rec, d)
		if err != nil {
			logger.Log.Warnf("Skipping question bank row %d: %v", line+2, err)
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question bank %s yielded no usable questions", path)
	}

	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	return questions, nil
}

func parseRow(cols map[string]int, rec []string, d Defaults) (Question, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	intField := func(name string, def int) int {
		v, err := strconv.Atoi(field(name))
		if err != nil || v <= 0 {
			return def
		}
		return v
	}

	text := field("question_text")
	correct := field("correct_option")
	if text == "" || correct == "" {
		return Question{}, fmt.Errorf("missing question text or correct option")
	}

	options := []string{correct}
	n := intField("n_of_other_options", 0)
	for i := 1; i <= 5 && i <= n; i++ {
		if opt := field(fmt.Sprintf("other_option%d", i)); opt != "" {
			options = append(options, opt)
		}
	}
	if len(options) < MinOptions {
		return Question{}, fmt.Errorf("only %d options, need at least %d", len(options), MinOptions)
	}

	imageRef := ""
	if truthy(field("has_image")) {
		if p := field("path_to_image"); p != "" {
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			imageRef = p
		}
	}

	q := Question{
		Text:          text,
		ImageRef:      imageRef,
		ImageSeconds:  intField("time_for_image", d.ImageSeconds),
		AnswerSeconds: intField("time_sec", d.AnswerSeconds),
	}
	q.Options, q.CorrectIndex = shuffleOptions(options, 0)

	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// shuffleOptions permutes opts and returns the new position of the
// option previously at correct. The permutation and the index remap
// happen together so the invariant can never be observed broken.
func shuffleOptions(opts []string, correct int) ([]string, int) {
	shuffled := make([]string, len(opts))
	copy(shuffled, opts)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		switch correct {
		case i:
			correct = j
		case j:
			correct = i
		}
	})
	return shuffled, correct
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// Placeholder returns a small built-in question set used when the CSV
// bank is missing or unreadable.
func Placeholder(d Defaults) []Question {
	base := []Question{
		{
			Text:    "Which planet is known as the Red Planet?",
			Options: []string{"Mars", "Venus", "Jupiter", "Mercury"},
		},
		{
			Text:    "How many strings does a standard violin have?",
			Options: []string{"Four", "Five", "Six", "Seven"},
		},
		{
			Text:    "Which ocean is the largest?",
			Options: []string{"Pacific", "Atlantic", "Indian", "Arctic"},
		},
		{
			Text:    "What is the chemical symbol for gold?",
			Options: []string{"Au", "Ag", "Gd", "Go"},
		},
		{
			Text:    "Which country hosted the first modern Olympic Games?",
			Options: []string{"Greece", "France", "England", "Italy"},
		},
	}
	d = d.filled()
	for i := range base {
		base[i].Options, base[i].CorrectIndex = shuffleOptions(base[i].Options, 0)
		base[i].AnswerSeconds = d.AnswerSeconds
		base[i].ImageSeconds = d.ImageSeconds
	}
	return base
}
