package student_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sigongjoa/exam-builder/internal/platform/database/dbtest"
	"github.com/sigongjoa/exam-builder/internal/student"
)

func TestPostgresStore(t *testing.T) {
	db := dbtest.New(t)
	s := student.NewPostgresStore(db.Pool)
	ctx := context.Background()

	st := &student.Student{Name: "김민준", Grade: "중1", Subject: "중1수학", DifficultyLevel: student.LevelAdvanced, GroupName: "A반"}
	if err := s.Create(ctx, st); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notes := "서술형 연습 필요"
	updated, err := s.Update(ctx, st.ID, student.Patch{Notes: &notes})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Notes != notes || updated.DifficultyLevel != student.LevelAdvanced {
		t.Errorf("Update() = %+v", updated)
	}

	c := &student.Condition{StudentID: st.ID, ConditionType: "weak_chapter", ConditionValue: "1-1-3"}
	if err := s.AddCondition(ctx, c); err != nil {
		t.Fatalf("AddCondition() error = %v", err)
	}
	group, err := s.ListByGroup(ctx, "A반")
	if err != nil || len(group) != 1 || len(group[0].Conditions) != 1 {
		t.Fatalf("ListByGroup() = %+v, %v", group, err)
	}

	if err := s.Delete(ctx, st.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Conditions(ctx, st.ID); !errors.Is(err, student.ErrNotFound) {
		t.Errorf("Conditions() after delete error = %v, want ErrNotFound", err)
	}
}
