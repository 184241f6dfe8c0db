package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/export"
	"github.com/gin-gonic/gin"
)

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired), errors.Is(err, common.ErrorUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	case errors.Is(err, common.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) sealKey(c *gin.Context) {
	alg, pem, err := s.deps.Seals.PublicKeyPEM()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"algorithm": alg, "publicKey": string(pem)})
}

func (s *Server) share(c *gin.Context) {
	job, err := s.deps.Tokens.ResolveShare(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) verify(c *gin.Context) {
	res, err := s.deps.Seals.VerifyPublic(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) records(c *gin.Context) ([]export.Record, bool) {
	records, err := s.deps.Exports.Export(c.Request.Context(), principalOf(c))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return records, true
}

func (s *Server) exportCSV(c *gin.Context) {
	records, ok := s.records(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="jobs.csv"`)
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, records); err != nil {
		s.logger.Error(c.Request.Context(), "csv export failed", "error", err)
	}
}

func (s *Server) exportJSON(c *gin.Context) {
	records, ok := s.records(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteJSON(c.Writer, records); err != nil {
		s.logger.Error(c.Request.Context(), "json export failed", "error", err)
	}
}
