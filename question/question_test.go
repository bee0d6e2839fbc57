package question

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quizparty/quizparty/logger"
)

func TestMain(m *testing.M) {
	logger.InitDevelopment()
	os.Exit(m.Run())
}

const sampleBank = `question_text;correct_option;n_of_other_options;other_option1;other_option2;other_option3;other_option4;other_option5;time_sec;has_image;time_for_image;path_to_image
What is 2+2?;Four;3;Three;Five;Six;;;20;0;;
Which animal is this?;Lynx;2;Bobcat;Caracal;;;;25;1;15;photos/lynx.jpg
Broken row;;;;;;;;;;;
Too few options;OnlyAnswer;0;;;;;;30;0;;
`

func writeBank(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing bank: %v", err)
	}
	return path
}

func TestLoadCSVParsesBank(t *testing.T) {
	qs, err := LoadCSV(writeBank(t, sampleBank), Defaults{})
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}

	// The broken row and the row with a single option must be skipped.
	if len(qs) != 2 {
		t.Fatalf("Expected 2 questions, got %d", len(qs))
	}

	byText := make(map[string]Question)
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			t.Errorf("Loaded question failed validation: %v", err)
		}
		byText[q.Text] = q
	}

	math, ok := byText["What is 2+2?"]
	if !ok {
		t.Fatal("Math question missing from bank")
	}
	if len(math.Options) != 4 {
		t.Errorf("Expected 4 options, got %d", len(math.Options))
	}
	if math.CorrectOption() != "Four" {
		t.Errorf("Correct option should survive shuffling, got %q", math.CorrectOption())
	}
	if math.AnswerSeconds != 20 {
		t.Errorf("Expected 20 answer seconds, got %d", math.AnswerSeconds)
	}
	if math.HasImage() {
		t.Error("Math question should not have an image")
	}

	lynx := byText["Which animal is this?"]
	if lynx.ImageRef != "/photos/lynx.jpg" {
		t.Errorf("Image path should get a leading slash, got %q", lynx.ImageRef)
	}
	if lynx.ImageSeconds != 15 {
		t.Errorf("Expected 15 image seconds, got %d", lynx.ImageSeconds)
	}
}

func TestLoadCSVAppliesDefaults(t *testing.T) {
	bank := `question_text;correct_option;n_of_other_options;other_option1;time_sec;has_image;time_for_image;path_to_image
No timings here;Right;1;Wrong;;1;;photos/x.jpg
`
	qs, err := LoadCSV(writeBank(t, bank), Defaults{AnswerSeconds: 45, ImageSeconds: 12})
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	if qs[0].AnswerSeconds != 45 {
		t.Errorf("Expected default 45 answer seconds, got %d", qs[0].AnswerSeconds)
	}
	if qs[0].ImageSeconds != 12 {
		t.Errorf("Expected default 12 image seconds, got %d", qs[0].ImageSeconds)
	}
}

func TestLoadFallsBackToPlaceholder(t *testing.T) {
	qs := Load(filepath.Join(t.TempDir(), "missing.csv"), Defaults{})
	if len(qs) == 0 {
		t.Fatal("Load should fall back to the placeholder set")
	}
	for _, q := range qs {
		if err := q.Validate(); err != nil {
			t.Errorf("Placeholder question invalid: %v", err)
		}
		if q.HasImage() {
			t.Errorf("Placeholder question %q should not reference an image", q.Text)
		}
	}
}

func TestShuffleOptionsKeepsCorrectIndex(t *testing.T) {
	opts := []string{"right", "a", "b", "c", "d"}
	for i := 0; i < 200; i++ {
		shuffled, correct := shuffleOptions(opts, 0)
		if shuffled[correct] != "right" {
			t.Fatalf("Correct index lost in shuffle: got %q at %d", shuffled[correct], correct)
		}
	}
}

func TestValidateRejectsBadQuestions(t *testing.T) {
	good := Question{
		Text:          "ok?",
		Options:       []string{"a", "b"},
		CorrectIndex:  1,
		AnswerSeconds: 10,
		ImageSeconds:  10,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("Valid question rejected: %v", err)
	}

	bad := good
	bad.CorrectIndex = 2
	if err := bad.Validate(); err == nil {
		t.Error("Out-of-range correct index should be rejected")
	}

	bad = good
	bad.Options = []string{"only"}
	if err := bad.Validate(); err == nil {
		t.Error("Single option should be rejected")
	}

	bad = good
	bad.AnswerSeconds = 0
	if err := bad.Validate(); err == nil {
		t.Error("Zero answer time should be rejected")
	}
}
