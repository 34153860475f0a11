package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
)

type importCourseRepoStub struct {
	upserts []*models.Course
}

func (s *importCourseRepoStub) UpsertByCode(ctx context.Context, course *models.Course) error {
	copy := *course
	s.upserts = append(s.upserts, &copy)
	return nil
}

type importClassroomRepoStub struct {
	existing map[string]bool
	created  []*models.Classroom
}

func (s *importClassroomRepoStub) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return s.existing[name], nil
}

func (s *importClassroomRepoStub) Create(ctx context.Context, classroom *models.Classroom) error {
	copy := *classroom
	s.created = append(s.created, &copy)
	return nil
}

type importTeacherStub struct {
	byEmail map[string]*models.Teacher
}

func (s *importTeacherStub) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	if t, ok := s.byEmail[email]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func TestImportServiceCoursesReportsRowErrors(t *testing.T) {
	courses := &importCourseRepoStub{}
	teachers := &importTeacherStub{byEmail: map[string]*models.Teacher{
		"ada@campus.edu": {ID: "t1", Active: true},
	}}
	svc := NewImportService(courses, &importClassroomRepoStub{}, teachers, zap.NewNop())

	csv := "code,name,teacher_email,category,level,semester,capacity_margin,sessions,cohorts,hardcoded\n" +
		"CS101,Intro,ada@campus.edu,compulsory,1,1,10,theory:2;lab:2,CS:40,\n" +
		"CS102,Algorithms,ghost@campus.edu,compulsory,2,3,0,theory:3,CS:35,\n" +
		"CS103,Seminar,ada@campus.edu,optional,1,1,0,theory:1,CS:20,\n"

	summary, err := svc.ImportCourses(context.Background(), []byte(csv), ',')
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 2, summary.Skipped)
	require.Len(t, summary.Errors, 2)
	assert.Contains(t, summary.Errors[0], "row 3")
	assert.Contains(t, summary.Errors[0], "ghost@campus.edu")
	assert.Contains(t, summary.Errors[1], "row 4")

	require.Len(t, courses.upserts, 1)
	imported := courses.upserts[0]
	assert.Equal(t, "CS101", imported.Code)
	assert.Equal(t, "t1", imported.TeacherID)
	assert.JSONEq(t, `[{"type":"theory","hours":2},{"type":"lab","hours":2}]`, string(imported.Sessions))
	assert.JSONEq(t, `[{"department":"CS","headcount":40}]`, string(imported.Cohorts))
}

func TestImportServiceCoursesWithPinnedSlots(t *testing.T) {
	courses := &importCourseRepoStub{}
	teachers := &importTeacherStub{byEmail: map[string]*models.Teacher{
		"ada@campus.edu": {ID: "t1", Active: true},
	}}
	svc := NewImportService(courses, &importClassroomRepoStub{}, teachers, zap.NewNop())

	csv := "code,name,teacher_email,category,level,semester,capacity_margin,sessions,cohorts,hardcoded\n" +
		"CS101,Intro,ada@campus.edu,compulsory,1,1,0,theory:2,CS:40,Monday/09:00/2/theory\n"

	summary, err := svc.ImportCourses(context.Background(), []byte(csv), ',')
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	require.Len(t, courses.upserts, 1)
	assert.JSONEq(t, `[{"day":"Monday","start":"09:00","hours":2,"type":"theory"}]`, string(courses.upserts[0].Hardcoded))
}

func TestImportServiceCoursesInvalidCSV(t *testing.T) {
	svc := NewImportService(&importCourseRepoStub{}, &importClassroomRepoStub{}, &importTeacherStub{}, zap.NewNop())
	_, err := svc.ImportCourses(context.Background(), []byte("not a csv header\n\"unterminated"), ',')
	assert.Error(t, err)
}

func TestImportServiceClassroomsSkipsExisting(t *testing.T) {
	classrooms := &importClassroomRepoStub{existing: map[string]bool{"A-101": true}}
	svc := NewImportService(&importCourseRepoStub{}, classrooms, &importTeacherStub{}, zap.NewNop())

	csv := "name,building,capacity,type,priority_department\n" +
		"A-101,Main,40,theory,\n" +
		"B-201,Annex,25,lab,CS\n" +
		"B-202,Annex,0,lab,\n"

	summary, err := svc.ImportClassrooms(context.Background(), []byte(csv), ',')
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 2, summary.Skipped)

	require.Len(t, classrooms.created, 1)
	created := classrooms.created[0]
	assert.Equal(t, "B-201", created.Name)
	require.NotNil(t, created.Building)
	assert.Equal(t, "Annex", *created.Building)
	require.NotNil(t, created.PriorityDepartment)
	assert.Equal(t, "CS", *created.PriorityDepartment)
	assert.True(t, created.Active)
}

func TestImportServiceClassroomsSemicolonDelimiter(t *testing.T) {
	classrooms := &importClassroomRepoStub{existing: map[string]bool{}}
	svc := NewImportService(&importCourseRepoStub{}, classrooms, &importTeacherStub{}, zap.NewNop())

	csv := "name;building;capacity;type;priority_department\n" +
		"C-301;Main;60;hybrid;\n"

	summary, err := svc.ImportClassrooms(context.Background(), []byte(csv), ';')
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 0, summary.Skipped)
}
