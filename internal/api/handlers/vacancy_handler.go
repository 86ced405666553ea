package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	pgrepo "github.com/botcraftengineer/qbs-autonaim-sub007/internal/repositories/postgres"
	"github.com/botcraftengineer/qbs-autonaim-sub007/internal/utils"
)

// VacancyHandler backs the vacancy_search identification path: a candidate
// who has no PIN describes the position they applied for and gets matched
// against open vacancies.
type VacancyHandler struct {
	vacancies pgrepo.VacancyRepo
}

func NewVacancyHandler(vacancies pgrepo.VacancyRepo) *VacancyHandler {
	return &VacancyHandler{vacancies: vacancies}
}

func (h *VacancyHandler) Search(c *gin.Context) {
	const op = "VacancyHandler.Search"

	q := c.Query("q")
	if q == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "q query parameter is required", nil))
		return
	}

	limit := 20
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	rows, err := h.vacancies.Search(c.Request.Context(), q, limit)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, op, "vacancy search failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "vacancies": rows})
}
