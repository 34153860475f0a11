package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

// ImportHandler accepts CSV catalog uploads.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler constructs a new ImportHandler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// Courses godoc
// @Summary Import courses from CSV
// @Description Upserts courses by code. Nested collections are encoded in
// @Description single cells, e.g. sessions "theory:3;lab:2".
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param delimiter query string false "Field delimiter, defaults to comma"
// @Success 200 {object} response.Envelope
// @Router /imports/courses [post]
func (h *ImportHandler) Courses(c *gin.Context) {
	h.handleUpload(c, h.imports.ImportCourses)
}

// Classrooms godoc
// @Summary Import classrooms from CSV
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV file"
// @Param delimiter query string false "Field delimiter, defaults to comma"
// @Success 200 {object} response.Envelope
// @Router /imports/classrooms [post]
func (h *ImportHandler) Classrooms(c *gin.Context) {
	h.handleUpload(c, h.imports.ImportClassrooms)
}

func (h *ImportHandler) handleUpload(c *gin.Context, importFn func(ctx context.Context, data []byte, delim rune) (*dto.ImportSummary, error)) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read file"))
		return
	}

	delim := ','
	if raw := c.Query("delimiter"); raw != "" {
		delim = rune(raw[0])
	}

	summary, err := importFn(c.Request.Context(), data, delim)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
