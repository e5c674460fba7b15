package wizard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"companion/internal/companion"
	"companion/internal/domain"
	"companion/internal/imagegen"
	"companion/internal/infra"
)

type stubGenerator struct {
	mu      sync.Mutex
	inputs  []imagegen.Input
	result  *imagegen.Result
	err     error
	release chan struct{}
	started chan struct{}
}

func (g *stubGenerator) Generate(ctx context.Context, in imagegen.Input) (*imagegen.Result, error) {
	g.mu.Lock()
	g.inputs = append(g.inputs, in)
	g.mu.Unlock()
	if in.OnState != nil {
		in.OnState(imagegen.StateGeneratingFace)
	}
	if g.started != nil {
		close(g.started)
	}
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type stubSaver struct {
	inputs []companion.SaveInput
	err    error
}

func (s *stubSaver) SaveCompanion(_ context.Context, in companion.SaveInput) (*domain.Companion, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Companion{ID: "comp-1", UserID: in.UserID, Name: in.Draft.Name}, nil
}

func strp(s string) *string { return &s }

func newTestService(gen *stubGenerator, saver *stubSaver) *Service {
	return NewService(NewStore(), nil, gen, saver, infra.NopLogger())
}

func faceResult() *imagegen.Result {
	return &imagegen.Result{
		Mode:    imagegen.ModeFace,
		Face:    domain.GenerationResult{ImageURL: "f0", ImageURLs: []string{"f0"}, Prompt: "face prompt"},
		Cost:    2,
		Balance: 18,
	}
}

func faceBodyResult() *imagegen.Result {
	return &imagegen.Result{
		Mode:    imagegen.ModeFaceBody,
		Face:    domain.GenerationResult{ImageURL: "f0", Prompt: "face prompt"},
		Body:    &domain.GenerationResult{ImageURLs: []string{"b0", "b1", "b2", "b3"}, Prompt: "body prompt"},
		Cost:    7,
		Balance: 13,
	}
}

// walk fills every step for a female companion and advances to target.
func walk(t *testing.T, svc *Service, id string, target int) {
	t.Helper()
	patches := []Patch{
		{Type: strp("romantic"), Gender: strp("female")},
		{Age: strp("30s"), Ethnicity: strp("european")},
		{EyeColor: strp("green"), HairColor: strp("red"), HairStyle: strp("curly")},
		{BodyShape: strp("slim"), BreastSize: strp("medium"), ButtSize: strp("average")},
		{Name: strp("Mia")},
		{Personality: &[]string{"caring", "funny"}},
	}
	for step := 1; step < target; step++ {
		if _, err := svc.Update(id, "u1", patches[step-1]); err != nil {
			t.Fatalf("Update step %d: %v", step, err)
		}
		sess, err := svc.Next(id, "u1")
		if err != nil {
			t.Fatalf("Next from step %d: %v", step, err)
		}
		if sess.Step != step+1 {
			t.Fatalf("step = %d, want %d", sess.Step, step+1)
		}
	}
	if target == TotalSteps {
		if _, err := svc.Update(id, "u1", patches[TotalSteps-1]); err != nil {
			t.Fatalf("Update last step: %v", err)
		}
	}
}

func TestNextValidatesCurrentStep(t *testing.T) {
	svc := newTestService(&stubGenerator{}, &stubSaver{})
	sess, err := svc.Start("u1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = svc.Next(sess.ID, "u1")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Step != StepTypeGender || verr.Field != "type" {
		t.Fatalf("err = %v, want type validation error", err)
	}
	if !errors.Is(err, domain.ErrInvalidAttribute) {
		t.Fatalf("validation errors must match ErrInvalidAttribute")
	}

	if _, err := svc.Update(sess.ID, "u1", Patch{Type: strp("fitness"), Gender: strp("female")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Next(sess.ID, "u1"); !errors.As(err, &verr) || verr.Field != "type" {
		t.Fatalf("unavailable type must be rejected, got %v", err)
	}
}

func TestBackNeverValidates(t *testing.T) {
	svc := newTestService(&stubGenerator{}, &stubSaver{})
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepFace)

	if _, err := svc.Update(sess.ID, "u1", Patch{Age: strp("")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	back, err := svc.Back(sess.ID, "u1")
	if err != nil || back.Step != StepAgeEthnicity {
		t.Fatalf("Back = %d, %v", back.Step, err)
	}
	back, _ = svc.Back(sess.ID, "u1")
	back, _ = svc.Back(sess.ID, "u1")
	if back.Step != StepTypeGender {
		t.Fatalf("Back below step one: %d", back.Step)
	}
}

func TestGenderRestrictedOptions(t *testing.T) {
	svc := newTestService(&stubGenerator{}, &stubSaver{})
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepAgeEthnicity)

	if _, err := svc.Update(sess.ID, "u1", Patch{Gender: strp("male")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Update(sess.ID, "u1", Patch{Age: strp("30s"), Ethnicity: strp("latina")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	var verr *ValidationError
	if _, err := svc.Next(sess.ID, "u1"); !errors.As(err, &verr) || verr.Field != "ethnicity" {
		t.Fatalf("latina must be rejected for male, got %v", err)
	}
}

func TestBodyStepRequiresBreastSizeOnlyForFemale(t *testing.T) {
	c := domain.DefaultCatalog()
	s := &Session{Attributes: domain.Attributes{Gender: "female", BodyShape: "slim", ButtSize: "average"}}
	var verr *ValidationError
	if err := Validate(c, s, StepBody); !errors.As(err, &verr) || verr.Field != "breastSize" {
		t.Fatalf("err = %v, want breastSize required", err)
	}
	s.Attributes.Gender = "male"
	if err := Validate(c, s, StepBody); err != nil {
		t.Fatalf("male body step: %v", err)
	}
}

func TestNameAndPersonalityRules(t *testing.T) {
	c := domain.DefaultCatalog()
	cases := []struct {
		name    string
		sess    Session
		step    int
		wantErr bool
	}{
		{"empty name", Session{Name: "  "}, StepName, true},
		{"long name", Session{Name: "abcdefghijklmnopqrstuvwxyzabcdefghijklmno"}, StepName, true},
		{"forty runes", Session{Name: "ééééééééééééééééééééééééééééééééééééééé1"}, StepName, false},
		{"no traits", Session{}, StepPersonality, false},
		{"three traits", Session{Personality: []string{"caring", "funny", "shy"}}, StepPersonality, false},
		{"four traits", Session{Personality: []string{"caring", "funny", "shy", "outgoing"}}, StepPersonality, true},
		{"unknown trait", Session{Personality: []string{"grumpy"}}, StepPersonality, true},
		{"duplicate trait", Session{Personality: []string{"shy", "shy"}}, StepPersonality, true},
	}
	for _, tc := range cases {
		err := Validate(c, &tc.sess, tc.step)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestGenerateFaceModeBeforeBodyStep(t *testing.T) {
	gen := &stubGenerator{result: faceResult()}
	svc := newTestService(gen, &stubSaver{})
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepFace)

	out, err := svc.Generate(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.inputs[0].Mode != imagegen.ModeFace {
		t.Fatalf("mode = %s, want face", gen.inputs[0].Mode)
	}
	if out.SelectedFace != 0 || out.SelectedFaceURL() != "f0" || len(out.BodyVariants) != 0 {
		t.Fatalf("unexpected session: %#v", out)
	}
	if out.GenerationState != imagegen.StateSucceeded || out.Balance == nil || *out.Balance != 18 {
		t.Fatalf("state=%s balance=%v", out.GenerationState, out.Balance)
	}
}

func TestGenerateFaceBodyFromBodyStep(t *testing.T) {
	gen := &stubGenerator{result: faceBodyResult()}
	svc := newTestService(gen, &stubSaver{})
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepBody)
	if _, err := svc.Update(sess.ID, "u1", Patch{BodyShape: strp("slim"), BreastSize: strp("medium"), ButtSize: strp("average")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	out, err := svc.Generate(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.inputs[0].Mode != imagegen.ModeFaceBody {
		t.Fatalf("mode = %s, want face_body", gen.inputs[0].Mode)
	}
	if len(out.BodyVariants) != 4 || out.SelectedBody != 0 || out.BodyPrompt != "body prompt" {
		t.Fatalf("unexpected body state: %#v", out)
	}

	sel, err := svc.Select(sess.ID, "u1", VariantBody, 3)
	if err != nil || sel.SelectedBodyURL() != "b3" {
		t.Fatalf("Select = %q, %v", sel.SelectedBodyURL(), err)
	}
	again, _ := svc.Select(sess.ID, "u1", VariantBody, 3)
	if again.SelectedBody != 3 || len(gen.inputs) != 1 {
		t.Fatalf("selecting must be idempotent and offline")
	}
	if _, err := svc.Select(sess.ID, "u1", VariantBody, 4); !errors.Is(err, ErrVariantOutOfRange) {
		t.Fatalf("out of range err = %v", err)
	}
	if _, err := svc.Select(sess.ID, "u1", "hands", 0); !errors.Is(err, ErrUnknownVariantKind) {
		t.Fatalf("unknown kind err = %v", err)
	}
}

func TestGenerateFailureKeepsError(t *testing.T) {
	gen := &stubGenerator{err: &imagegen.Error{Kind: imagegen.KindUpstream, Stage: imagegen.StageFace, Detail: "model overloaded", Attempts: 2}}
	svc := newTestService(gen, &stubSaver{})
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepFace)

	out, err := svc.Generate(context.Background(), sess.ID, "u1")
	if !errors.Is(err, imagegen.ErrUpstream) {
		t.Fatalf("err = %v", err)
	}
	if out.GenerationState != imagegen.StateFailed || out.LastError == nil || out.LastError.Detail != "model overloaded" {
		t.Fatalf("unexpected session after failure: %#v", out)
	}
	if len(out.FaceVariants) != 0 || out.SelectedFace != -1 {
		t.Fatalf("variants must be cleared on failure")
	}

	// The session stays usable.
	if _, err := svc.Back(sess.ID, "u1"); err != nil {
		t.Fatalf("Back after failure: %v", err)
	}
}

func TestGenerateRequiresEarlierSteps(t *testing.T) {
	gen := &stubGenerator{result: faceResult()}
	svc := newTestService(gen, &stubSaver{})
	sess, _ := svc.Start("u1")

	var verr *ValidationError
	if _, err := svc.Generate(context.Background(), sess.ID, "u1"); !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(gen.inputs) != 0 {
		t.Fatalf("generator must not be called")
	}
}

func TestConcurrentGenerateRejected(t *testing.T) {
	gen := &stubGenerator{result: faceResult(), release: make(chan struct{}), started: make(chan struct{})}
	svc := newTestService(gen, &stubSaver{})
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepFace)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(context.Background(), sess.ID, "u1")
		done <- err
	}()
	<-gen.started

	if _, err := svc.Generate(context.Background(), sess.ID, "u1"); !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("err = %v, want in progress", err)
	}
	if _, err := svc.Next(sess.ID, "u1"); !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("Next during generation err = %v", err)
	}
	mid, _ := svc.Get(sess.ID, "u1")
	if mid.GenerationState != imagegen.StateGeneratingFace {
		t.Fatalf("state = %s, want generating-face", mid.GenerationState)
	}

	close(gen.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("first Generate: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("generation did not finish")
	}
}

func TestCompleteSavesAndCloses(t *testing.T) {
	gen := &stubGenerator{result: faceBodyResult()}
	saver := &stubSaver{}
	svc := newTestService(gen, saver)
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepBody)
	if _, err := svc.Update(sess.ID, "u1", Patch{BodyShape: strp("slim"), BreastSize: strp("medium"), ButtSize: strp("average")}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, _, err := svc.Complete(context.Background(), sess.ID, "u1"); err == nil {
		t.Fatalf("Complete before name and images must fail")
	}

	if _, err := svc.Generate(context.Background(), sess.ID, "u1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	walkFrom(t, svc, sess.ID)
	if _, err := svc.Select(sess.ID, "u1", VariantBody, 2); err != nil {
		t.Fatalf("Select: %v", err)
	}

	out, saved, err := svc.Complete(context.Background(), sess.ID, "u1")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !out.Completed || out.CompanionID != "comp-1" || saved.ID != "comp-1" {
		t.Fatalf("unexpected completion: %#v", out)
	}
	in := saver.inputs[0]
	if in.FaceImage != "f0" || in.BodyImage != "b2" || in.FacePrompt != "face prompt" || in.BodyPrompt != "body prompt" {
		t.Fatalf("unexpected save input: %#v", in)
	}
	if in.Draft.Name != "Mia" || len(in.Draft.Personality) != 2 {
		t.Fatalf("unexpected draft: %#v", in.Draft)
	}

	if _, err := svc.Next(sess.ID, "u1"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("closed session err = %v", err)
	}
}

// walkFrom fills name and personality after the body step.
func walkFrom(t *testing.T, svc *Service, id string) {
	t.Helper()
	if _, err := svc.Next(id, "u1"); err != nil {
		t.Fatalf("Next from body: %v", err)
	}
	if _, err := svc.Update(id, "u1", Patch{Name: strp("Mia")}); err != nil {
		t.Fatalf("Update name: %v", err)
	}
	if _, err := svc.Next(id, "u1"); err != nil {
		t.Fatalf("Next from name: %v", err)
	}
	if _, err := svc.Update(id, "u1", Patch{Personality: &[]string{"caring", "funny"}}); err != nil {
		t.Fatalf("Update personality: %v", err)
	}
}

func TestCompleteSaveFailureKeepsSessionOpen(t *testing.T) {
	gen := &stubGenerator{result: faceBodyResult()}
	saver := &stubSaver{err: &companion.PersistenceError{Stage: companion.StageBodyUpload, Err: errors.New("boom")}}
	svc := newTestService(gen, saver)
	sess, _ := svc.Start("u1")
	walk(t, svc, sess.ID, StepBody)
	if _, err := svc.Update(sess.ID, "u1", Patch{BodyShape: strp("slim"), BreastSize: strp("medium"), ButtSize: strp("average")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Generate(context.Background(), sess.ID, "u1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	walkFrom(t, svc, sess.ID)

	out, _, err := svc.Complete(context.Background(), sess.ID, "u1")
	var perr *companion.PersistenceError
	if !errors.As(err, &perr) || perr.Stage != companion.StageBodyUpload {
		t.Fatalf("err = %v", err)
	}
	if out.Completed {
		t.Fatalf("failed save must leave the session open")
	}
	saver.err = nil
	if _, _, err := svc.Complete(context.Background(), sess.ID, "u1"); err != nil {
		t.Fatalf("retry Complete: %v", err)
	}
}

func TestSessionsAreOwned(t *testing.T) {
	svc := newTestService(&stubGenerator{}, &stubSaver{})
	sess, _ := svc.Start("u1")
	if _, err := svc.Get(sess.ID, "u2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if _, err := svc.Start(""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("anonymous start err = %v", err)
	}
}

func TestPruneDropsIdleSessions(t *testing.T) {
	store := NewStore()
	svc := NewService(store, nil, &stubGenerator{}, &stubSaver{}, infra.NopLogger())
	old, _ := svc.Start("u1")
	store.mu.Lock()
	store.m[old.ID].UpdatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()
	_, _ = svc.Start("u1")

	if n := svc.Prune(time.Hour); n != 1 || store.Len() != 1 {
		t.Fatalf("pruned %d, left %d", n, store.Len())
	}
}
