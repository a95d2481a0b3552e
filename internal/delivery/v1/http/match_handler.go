package http

import (
	"net/http"
	"strings"

	"github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

const maxMultipartMemory = 32 << 20

// MatchResultResponse — найденный товар каталога.
type MatchResultResponse struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
	Category    string  `json:"category"`
	Score       float64 `json:"score"`
}

// MatchResponse — ответ на поиск. Пустой results вместе с no_match=true означает,
// что ни один товар не прошёл порог близости.
type MatchResponse struct {
	Results []MatchResultResponse `json:"results"`
	NoMatch bool                  `json:"no_match"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Total   int    `json:"catalog_total"`
	Valid   int    `json:"catalog_valid"`
	Dim     int    `json:"vector_dim"`
	Message string `json:"message,omitempty"`
}

type MatchHandler struct {
	matchUC       usecase.MatchUC
	logger        logger.Logger
	matchCfg      *cfg.MatchCfg
	maxImageBytes int64
}

func NewMatchHandler(matchUC usecase.MatchUC, logger logger.Logger, matchCfg *cfg.MatchCfg, maxImageBytes int64) *MatchHandler {
	return &MatchHandler{
		matchUC:       matchUC,
		logger:        logger,
		matchCfg:      matchCfg,
		maxImageBytes: maxImageBytes,
	}
}

// match
//
//	@Summary		Поиск похожего товара
//	@Description	Векторизует изображение запроса и возвращает самый похожий товар каталога с близостью не ниже min_score
//	@Tags			match
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			image		formData	file	false	"Изображение товара"
//	@Param			image_url	formData	string	false	"Ссылка на изображение"
//	@Param			category	formData	string	false	"Категория или All"	default(All)
//	@Param			min_score	formData	number	false	"Порог близости в [0, 1]"	default(0.5)
//	@Success		200			{object}	MatchResponse
//	@Failure		400			{object}	ErrorResponse	"Ошибка валидации"
//	@Failure		413			{object}	ErrorResponse	"Слишком большой файл"
//	@Failure		422			{object}	ErrorResponse	"Изображение не удалось загрузить или декодировать"
//	@Failure		503			{object}	ErrorResponse	"Каталог недоступен"
//	@Router			/api/v1/match [post]
func (h *MatchHandler) match(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With("request_id", middleware.GetReqID(r.Context()))

	if err := parseMatchForm(r, maxMultipartMemory); err != nil {
		log.Warnf("%d %s: %v", http.StatusBadRequest, r.Header.Get("Content-Type"), err)
		WriteError(w, err)
		return
	}

	image, err := parseUpload(r.MultipartForm, h.maxImageBytes)
	if err != nil {
		log.Warnf("invalid upload: %v", err)
		WriteError(w, err)
		return
	}

	minScore, err := parseMinScore(r.FormValue("min_score"), h.matchCfg.DefaultMinScore)
	if err != nil {
		log.Warnf("invalid min_score %q: %v", r.FormValue("min_score"), err)
		WriteError(w, err)
		return
	}

	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		category = domain.AllCategories
	}

	res, err := h.matchUC.Match(r.Context(), usecase.NewMatchReq(image, r.FormValue("image_url"), category, minScore))
	if err != nil {
		code, _ := ToHTTPResponse(err)
		if code >= http.StatusInternalServerError {
			log.Errorf(err, "match failed")
		} else {
			log.Warnf("match rejected: %v", err)
		}
		WriteError(w, err)
		return
	}

	resp := MatchResponse{
		Results: make([]MatchResultResponse, 0, len(res.Results)),
		NoMatch: res.NoMatch,
	}
	for _, m := range res.Results {
		resp.Results = append(resp.Results, MatchResultResponse{
			Name:        m.Name,
			Description: m.Description,
			ImageURL:    m.ImageURL,
			Category:    m.Category,
			Score:       m.Score,
		})
	}

	if res.NoMatch {
		log.Infof("no match above %.2f in category %q", minScore, category)
	} else {
		log.Debugf("matched %q with score %.4f (cache hit: %t)", resp.Results[0].Name, resp.Results[0].Score, res.CacheHit)
	}

	WriteSuccess(w, http.StatusOK, resp)
}

// categories
//
//	@Summary	Список категорий
//	@Tags		match
//	@Produce	json
//	@Success	200	{object}	CategoriesResponse
//	@Router		/api/v1/categories [get]
func (h *MatchHandler) categories(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, CategoriesResponse{Categories: h.matchUC.Categories()})
}

// health
//
//	@Summary	Состояние сервиса и каталога
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/health [get]
func (h *MatchHandler) health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.matchUC.CatalogStats(r.Context())
	if err != nil {
		h.logger.Warnf("health check: %v", err)
		_, msg := ToHTTPResponse(err)
		WriteSuccess(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Message: msg})
		return
	}

	WriteSuccess(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Total:  stats.Total,
		Valid:  stats.Valid,
		Dim:    stats.Dim,
	})
}
