package student

import (
	"context"
	"errors"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestDifficultyLevel_MaxDifficulty(t *testing.T) {
	tests := []struct {
		level DifficultyLevel
		want  int
	}{
		{LevelBasic, 1},
		{LevelIntermediate, 2},
		{LevelAdvanced, 3},
		{"", 1},
		{"expert", 1},
	}
	for _, tt := range tests {
		if got := tt.level.MaxDifficulty(); got != tt.want {
			t.Errorf("%q.MaxDifficulty() = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestStudent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		student Student
		wantErr bool
	}{
		{"valid", Student{Name: "김민준", Grade: "중1", Subject: "중1수학"}, false},
		{"missing grade", Student{Name: "김민준", Subject: "중1수학"}, true},
		{"blank name", Student{Name: "  ", Grade: "중1", Subject: "중1수학"}, true},
		{"bad level", Student{Name: "김민준", Grade: "중1", Subject: "중1수학", DifficultyLevel: "expert"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.student.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error should wrap ErrInvalid: %v", err)
			}
		})
	}

	s := Student{Name: "김민준", Grade: "중1", Subject: "중1수학"}
	_ = s.Validate()
	if s.DifficultyLevel != LevelBasic {
		t.Errorf("default DifficultyLevel = %q, want basic", s.DifficultyLevel)
	}
}

func TestPatch_Validate(t *testing.T) {
	if err := (Patch{Name: ptr("")}).Validate(); err == nil {
		t.Error("blank name patch should fail")
	}
	if err := (Patch{DifficultyLevel: ptr(DifficultyLevel("hard"))}).Validate(); err == nil {
		t.Error("unknown level patch should fail")
	}
	if err := (Patch{Notes: ptr("")}).Validate(); err != nil {
		t.Errorf("clearing notes should pass: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := &Student{Name: "김민준", Grade: "중1", Subject: "중1수학", GroupName: "A반", DifficultyLevel: LevelIntermediate}
	b := &Student{Name: "이서연", Grade: "중1", Subject: "중1수학", GroupName: "B반"}
	for _, st := range []*Student{a, b} {
		if err := s.Create(ctx, st); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	group, err := s.ListByGroup(ctx, "A반")
	if err != nil || len(group) != 1 || group[0].ID != a.ID {
		t.Fatalf("ListByGroup() = %+v, %v", group, err)
	}

	updated, err := s.Update(ctx, b.ID, Patch{GroupName: ptr("A반"), Notes: ptr("함수 약함")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.GroupName != "A반" || updated.Name != "이서연" || updated.Notes != "함수 약함" {
		t.Errorf("Update() = %+v", updated)
	}

	c := &Condition{StudentID: a.ID, ConditionType: "weak_chapter", ConditionValue: "1-1-3"}
	if err := s.AddCondition(ctx, c); err != nil {
		t.Fatalf("AddCondition() error = %v", err)
	}
	got, _ := s.Get(ctx, a.ID)
	if len(got.Conditions) != 1 || got.Conditions[0].ConditionValue != "1-1-3" {
		t.Errorf("conditions = %+v", got.Conditions)
	}

	if err := s.DeleteCondition(ctx, b.ID, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteCondition(other student) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteCondition(ctx, a.ID, c.ID); err != nil {
		t.Fatalf("DeleteCondition() error = %v", err)
	}

	if err := s.AddCondition(ctx, &Condition{StudentID: 99, ConditionType: "x", ConditionValue: "y"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddCondition(unknown) error = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	all, _ := s.List(ctx)
	if len(all) != 1 {
		t.Errorf("List() = %d students, want 1", len(all))
	}
}
