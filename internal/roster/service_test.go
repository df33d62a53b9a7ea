package roster_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
	"edutrack/internal/roster"
	"edutrack/internal/store"
)

func newRoster(t *testing.T) (*roster.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return roster.NewService(mem), mem
}

func TestSubmitRegistration(t *testing.T) {
	svc, _ := newRoster(t)
	ctx := context.Background()

	req, err := svc.SubmitRegistration(ctx, roster.RegistrationInput{
		Name:   "Ravi Kumar",
		Email:  "ravi@example.com",
		Role:   model.RoleStudent,
		RollNo: "S-101",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, req.Status)
	assert.Equal(t, "A", req.Section)
	assert.NotEmpty(t, req.ID)
}

func TestSubmitRegistrationValidation(t *testing.T) {
	svc, _ := newRoster(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   roster.RegistrationInput
	}{
		{"missing name", roster.RegistrationInput{Email: "a@b.c", Role: model.RoleStudent, RollNo: "S-1"}},
		{"missing email", roster.RegistrationInput{Name: "A", Role: model.RoleStudent, RollNo: "S-1"}},
		{"admin role", roster.RegistrationInput{Name: "A", Email: "a@b.c", Role: model.RoleAdmin}},
		{"student without roll no", roster.RegistrationInput{Name: "A", Email: "a@b.c", Role: model.RoleStudent}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitRegistration(ctx, tc.in)
			assert.True(t, apperr.IsKind(err, apperr.KindInvalidArgument))
		})
	}
}

func TestApproveRegistrationCreatesStudent(t *testing.T) {
	svc, _ := newRoster(t)
	ctx := context.Background()

	req, err := svc.SubmitRegistration(ctx, roster.RegistrationInput{
		Name: "Ravi Kumar", Email: "ravi@example.com", Role: model.RoleStudent, RollNo: "S-101", Section: "B",
	})
	require.NoError(t, err)

	entityID, err := svc.ApproveRegistration(ctx, req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entityID)
	assert.NotEqual(t, req.ID, entityID)

	st, err := svc.StudentByID(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", st.Name)
	assert.Equal(t, "S-101", st.RollNo)
	assert.Equal(t, "B", st.Section)
	assert.Equal(t, 0, st.Coins)
}

func TestApproveRegistrationCreatesTeacher(t *testing.T) {
	svc, _ := newRoster(t)
	ctx := context.Background()

	req, err := svc.SubmitRegistration(ctx, roster.RegistrationInput{
		Name: "Meena Iyer", Email: "meena@example.com", Role: model.RoleTeacher,
	})
	require.NoError(t, err)

	entityID, err := svc.ApproveRegistration(ctx, req.ID)
	require.NoError(t, err)

	teacher, err := svc.TeacherByID(ctx, entityID)
	require.NoError(t, err)
	assert.Equal(t, "Meena Iyer", teacher.Name)
	assert.False(t, teacher.JoinDate.IsZero())
}

func TestRegistrationResolvesOnce(t *testing.T) {
	svc, _ := newRoster(t)
	ctx := context.Background()

	req, err := svc.SubmitRegistration(ctx, roster.RegistrationInput{
		Name: "Ravi", Email: "r@example.com", Role: model.RoleStudent, RollNo: "S-1",
	})
	require.NoError(t, err)

	_, err = svc.ApproveRegistration(ctx, req.ID)
	require.NoError(t, err)

	_, err = svc.ApproveRegistration(ctx, req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
	err = svc.RejectRegistration(ctx, req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

// Approving a student whose roll number got taken since submission fails
// and leaves the request PENDING.
func TestApproveRegistrationDuplicateRollNo(t *testing.T) {
	svc, mem := newRoster(t)
	ctx := context.Background()

	require.NoError(t, mem.InsertStudent(ctx, model.Student{ID: "existing", Name: "First", RollNo: "S-1"}))

	req, err := svc.SubmitRegistration(ctx, roster.RegistrationInput{
		Name: "Second", Email: "s@example.com", Role: model.RoleStudent, RollNo: "S-1",
	})
	require.NoError(t, err)

	_, err = svc.ApproveRegistration(ctx, req.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindDuplicateKey))

	stored, err := mem.RegistrationByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestRejectRegistration(t *testing.T) {
	svc, _ := newRoster(t)
	ctx := context.Background()

	req, err := svc.SubmitRegistration(ctx, roster.RegistrationInput{
		Name: "Ravi", Email: "r@example.com", Role: model.RoleStudent, RollNo: "S-1",
	})
	require.NoError(t, err)
	require.NoError(t, svc.RejectRegistration(ctx, req.ID))

	students, err := svc.Students(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, students)

	rejected, err := svc.Registrations(ctx, model.StatusRejected)
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
}

func TestImportStudentsSkipsBadRows(t *testing.T) {
	svc, mem := newRoster(t)
	ctx := context.Background()

	require.NoError(t, mem.InsertStudent(ctx, model.Student{ID: "existing", Name: "First", RollNo: "S-2"}))

	rows := []model.ImportRow{
		{Name: "Asha", RollNo: "S-1", Section: "A"},
		{Name: "", RollNo: "S-9"},          // no name
		{Name: "NoRoll", RollNo: "   "},    // blank roll number
		{Name: "Taken", RollNo: "S-2"},     // roll number already on roster
		{Name: "Bela", RollNo: "S-3"},      // defaults section to A
		{Name: "Asha Twin", RollNo: "S-1"}, // duplicate within the file
	}

	imported, err := svc.ImportStudents(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	students, err := svc.Students(ctx, "")
	require.NoError(t, err)
	assert.Len(t, students, 3)
	for _, st := range students {
		if st.RollNo == "S-3" {
			assert.Equal(t, "A", st.Section)
		}
	}
}

func TestParseImportCSV(t *testing.T) {
	input := strings.NewReader("name,rollNo,section\nAsha,S-1,A\nRavi, S-2 ,B\n\nBela,S-3\n")
	rows, err := roster.ParseImportCSV(input)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, model.ImportRow{Name: "Asha", RollNo: "S-1", Section: "A"}, rows[0])
	assert.Equal(t, "S-2", rows[1].RollNo)
	assert.Equal(t, "Bela", rows[2].Name)
}

func TestStudentSearch(t *testing.T) {
	svc, mem := newRoster(t)
	ctx := context.Background()

	require.NoError(t, mem.InsertStudent(ctx, model.Student{ID: "1", Name: "Asha Rao", RollNo: "S-1"}))
	require.NoError(t, mem.InsertStudent(ctx, model.Student{ID: "2", Name: "Ravi Kumar", RollNo: "S-2"}))

	byName, err := svc.Students(ctx, "asha")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Asha Rao", byName[0].Name)

	byRoll, err := svc.Students(ctx, "S-2")
	require.NoError(t, err)
	require.Len(t, byRoll, 1)
	assert.Equal(t, "Ravi Kumar", byRoll[0].Name)
}
