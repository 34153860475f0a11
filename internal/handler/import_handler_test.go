package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
)

type importCourseStoreMock struct {
	upserts []string
}

func (m *importCourseStoreMock) UpsertByCode(ctx context.Context, course *models.Course) error {
	m.upserts = append(m.upserts, course.Code)
	return nil
}

type importClassroomStoreMock struct{}

func (m *importClassroomStoreMock) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return false, nil
}

func (m *importClassroomStoreMock) Create(ctx context.Context, classroom *models.Classroom) error {
	return nil
}

type importTeacherLookupMock struct {
	teachers map[string]*models.Teacher
}

func (m *importTeacherLookupMock) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	if t, ok := m.teachers[email]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestImportHandlerCourses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	courses := &importCourseStoreMock{}
	svc := service.NewImportService(courses, &importClassroomStoreMock{}, &importTeacherLookupMock{
		teachers: map[string]*models.Teacher{"ada@campus.edu": {ID: "t1", Active: true}},
	}, zap.NewNop())
	handler := NewImportHandler(svc)

	csv := "code,name,teacher_email,category,level,semester,capacity_margin,sessions,cohorts,hardcoded\n" +
		"CS101,Intro,ada@campus.edu,compulsory,1,1,0,theory:2,CS:40,\n"
	body, contentType := multipartUpload(t, "file", "courses.csv", csv)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/imports/courses", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req

	handler.Courses(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.ImportSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.Imported)
	assert.Equal(t, 0, envelope.Data.Skipped)
	assert.Equal(t, []string{"CS101"}, courses.upserts)
}

func TestImportHandlerMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewImportService(&importCourseStoreMock{}, &importClassroomStoreMock{}, &importTeacherLookupMock{}, zap.NewNop())
	handler := NewImportHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/imports/courses", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Courses(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
