package response

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAttachmentQuotesFilename(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/download", nil)

	Attachment(c, `../uploads/my "final" form.pdf`, "application/pdf", 4, strings.NewReader("%PDF"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, `attachment; filename="my \"final\" form.pdf"`, rec.Header().Get("Content-Disposition"))
}

func TestAttachmentDefaultsContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/download", nil)

	Attachment(c, "requests.csv", "", -1, strings.NewReader("a,b\n"))

	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=requests.csv`, rec.Header().Get("Content-Disposition"))
}
