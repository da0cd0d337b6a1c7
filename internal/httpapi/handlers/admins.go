package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kseverny/interview-platform/internal/common"
	"github.com/kseverny/interview-platform/internal/models"
)

func (h *Handler) ListUsers(c *gin.Context) {
	page, perPage := pageParams(c)

	var total int64
	q := h.DB.WithContext(c.Request.Context()).Model(&models.User{})
	if role := c.Query("role"); role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Count(&total).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	var users []models.User
	if err := q.Order("id ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, common.NewPaginated(users, page, perPage, total))
}

func (h *Handler) setRole(c *gin.Context, role models.Role) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid user id")
		return
	}

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if user.Role == models.RoleAnonym {
		common.Fail(c, http.StatusBadRequest, 10040, "anonymous accounts cannot change role")
		return
	}

	user.Role = role
	if err := h.DB.WithContext(c.Request.Context()).Save(&user).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"id": user.ID, "role": user.Role})
}

func (h *Handler) PromoteAdmin(c *gin.Context) { h.setRole(c, models.RoleAdmin) }
func (h *Handler) DemoteAdmin(c *gin.Context)  { h.setRole(c, models.RoleUser) }
