package exam_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sigongjoa/exam-builder/internal/exam"
	"github.com/sigongjoa/exam-builder/internal/platform/database/dbtest"
	"github.com/sigongjoa/exam-builder/internal/problem"
	"github.com/sigongjoa/exam-builder/internal/student"
)

func TestPostgresStore_SmartExamLifecycle(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	problems := problem.NewPostgresStore(db.Pool)
	students := student.NewPostgresStore(db.Pool)
	store := exam.NewPostgresStore(db.Pool)
	svc := exam.NewService(store, students, exam.WithSelector(exam.NewSeededSelector(1, 1)))

	for _, d := range problem.Difficulties {
		for _, typ := range problem.Types {
			for i := range 4 {
				p := problem.Problem{
					Type:        typ,
					Subject:     "중1수학",
					ChapterCode: "1-1-1",
					Difficulty:  d,
					Question:    fmt.Sprintf("%d %s 문제 %d", d, typ, i),
					Answer:      "풀이 참고",
					Status:      problem.StatusApproved,
					Points:      int(d) + 1,
				}
				if typ == problem.TypeMultipleChoice {
					p.Choices = []string{"1", "2", "3", "4", "5"}
					p.Answer = "2"
				}
				if err := problem.Prepare(&p); err != nil {
					t.Fatal(err)
				}
				if err := problems.Create(ctx, &p); err != nil {
					t.Fatalf("Create() error = %v", err)
				}
			}
		}
	}

	res, err := svc.CreateSmartExam(ctx, exam.SmartRequest{
		Header: exam.Header{Title: "중간 대비", ExamType: "midterm"},
		Constraint: exam.Constraint{
			Subject:         "중1수학",
			ChapterCodes:    []string{"1-1-1"},
			TotalCount:      10,
			DifficultyRatio: exam.DifficultyRatio{1: 30, 2: 50, 3: 20},
			TypeRatio:       exam.TypeRatio{problem.TypeMultipleChoice: 70, problem.TypeDescriptive: 30},
		},
	})
	if err != nil {
		t.Fatalf("CreateSmartExam() error = %v", err)
	}
	if res.ProblemCount != 10 {
		t.Errorf("ProblemCount = %d, want 10", res.ProblemCount)
	}

	d, err := svc.GetExam(ctx, res.ExamID)
	if err != nil {
		t.Fatalf("GetExam() error = %v", err)
	}
	if d.TotalPoints != res.TotalPoints || d.ProblemCount != 10 {
		t.Errorf("stored exam = %+v, want total %d and 10 problems", d.Exam, res.TotalPoints)
	}
	sum := 0
	for i, p := range d.Problems {
		if p.SortOrder != i+1 {
			t.Errorf("problem %d sort order = %d", i, p.SortOrder)
		}
		sum += p.AssignedPoints
	}
	if sum != d.TotalPoints {
		t.Errorf("assigned points sum to %d, total_points = %d", sum, d.TotalPoints)
	}

	removed := d.Problems[1]
	if err := problems.Delete(ctx, removed.ID); err != nil {
		t.Fatal(err)
	}
	d, err = svc.GetExam(ctx, res.ExamID)
	if err != nil {
		t.Fatalf("GetExam() after problem delete error = %v", err)
	}
	wantTotal := res.TotalPoints - removed.AssignedPoints
	if d.ProblemCount != 9 || len(d.Problems) != 9 || d.TotalPoints != wantTotal {
		t.Errorf("after problem delete: count %d, %d problems, total %d, want 9 and %d",
			d.ProblemCount, len(d.Problems), d.TotalPoints, wantTotal)
	}
	if d.Problems[1].SortOrder != 2 {
		t.Errorf("sort order after gap = %d, want 2", d.Problems[1].SortOrder)
	}

	list, err := svc.ListExams(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListExams() = %d exams, err = %v", len(list), err)
	}
	if list[0].ProblemCount != 9 || list[0].TotalPoints != wantTotal {
		t.Errorf("listed exam = %+v, want 9 problems and total %d", list[0], wantTotal)
	}

	if err := svc.DeleteExam(ctx, res.ExamID); err != nil {
		t.Fatalf("DeleteExam() error = %v", err)
	}
	var links int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM exam_problems WHERE exam_id = $1`, res.ExamID).Scan(&links); err != nil {
		t.Fatal(err)
	}
	if links != 0 {
		t.Errorf("%d links left after delete, want 0", links)
	}
	if _, err := svc.GetExam(ctx, res.ExamID); !errors.Is(err, exam.ErrNotFound) {
		t.Errorf("GetExam() error = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_RollsBackUnknownProblem(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	svc := exam.NewService(exam.NewPostgresStore(db.Pool), student.NewPostgresStore(db.Pool))

	_, err := svc.CreateExam(ctx, exam.ManualRequest{
		Header:   exam.Header{Title: "t", ExamType: "x"},
		Problems: []exam.ManualItem{{ProblemID: 12345}},
	})
	if !errors.Is(err, exam.ErrUnknownProblem) {
		t.Fatalf("CreateExam() error = %v, want ErrUnknownProblem", err)
	}

	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d exams after rollback, want 0", n)
	}
}
