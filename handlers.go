package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"finbot/models"
	"finbot/pkg/dberr"
	"finbot/pkg/goal"
	"finbot/pkg/ledger"
	"finbot/pkg/wish"
)

var (
	ledgerSvc *ledger.Service
	goalSvc   *goal.Service
	wishSvc   *wish.Service
)

func setupRoutes(r *gin.Engine, cfg *Config) {
	r.POST("/register", registerHandler)
	r.POST("/login", func(c *gin.Context) { loginHandler(c, cfg) })
	r.POST("/refresh", func(c *gin.Context) { refreshHandler(c, cfg) })
	r.POST("/revoke_refresh", revokeRefreshHandler)

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/telegram", bindTelegramHandler)

	authGroup.POST("/wallets", createWalletHandler)
	authGroup.GET("/wallets", listWalletsHandler)
	authGroup.DELETE("/wallets/:id", deleteWalletHandler)

	authGroup.GET("/categories", listCategoriesHandler)
	authGroup.POST("/categories", createCategoryHandler)

	authGroup.POST("/transactions", createTransactionHandler)
	authGroup.GET("/transactions", listTransactionsHandler)
	authGroup.GET("/home", homeHandler)

	authGroup.POST("/goals", createGoalHandler)
	authGroup.GET("/goals", listGoalsHandler)
	authGroup.GET("/goals/current", currentGoalHandler)
	authGroup.PUT("/goals/:id", updateGoalHandler)
	authGroup.DELETE("/goals/:id", deleteGoalHandler)
	authGroup.POST("/goals/:id/deposit", depositGoalHandler)
	authGroup.POST("/goals/:id/withdraw", withdrawGoalHandler)

	authGroup.POST("/wishes", createWishHandler)
	authGroup.GET("/wishes", listWishesHandler)
	authGroup.POST("/wishes/:id/cancel", cancelWishHandler)
	authGroup.POST("/wishes/:id/postpone", postponeWishHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		token, err := jwt.Parse(authHeader[7:], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		uid, ok := claims["user_id"].(float64)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		c.Set("user_id", uint(uid))
		c.Next()
	}
}

func userID(c *gin.Context) uint {
	v, _ := c.Get("user_id")
	id, _ := v.(uint)
	return id
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrWalletInUse),
		errors.Is(err, goal.ErrGoalOverfunded),
		errors.Is(err, goal.ErrInsufficientGoalFunds):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidKind),
		errors.Is(err, goal.ErrInvalidAmount),
		errors.Is(err, goal.ErrInvalidTarget),
		errors.Is(err, wish.ErrEmptyItem),
		errors.Is(err, wish.ErrInvalidOffset),
		errors.Is(err, dberr.ErrInvalidReference):
		status = http.StatusBadRequest
	case errors.Is(err, dberr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, dberr.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// ---- auth ----

func registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := Register(req.Username, req.Password); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func loginHandler(c *gin.Context, cfg *Config) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tokenString, err := issueAccessToken(user, time.Duration(cfg.JWT.ExpireMinutes)*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": refreshToken})
}

// refreshHandler exchanges a refresh token for a new access token and
// rotates the refresh token.
func refreshHandler(c *gin.Context, cfg *Config) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	tokenString, err := issueAccessToken(user, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

func meHandler(c *gin.Context) {
	var user models.User
	if err := db.First(&user, userID(c)).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             user.ID,
		"username":       user.Username,
		"telegram_bound": user.TelegramChatID != nil,
	})
}

// bindTelegramHandler binds the chat the reminder process delivers to.
func bindTelegramHandler(c *gin.Context) {
	var req struct {
		ChatID int64 `json:"chat_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := db.Model(&models.User{}).
		Where("id = ?", userID(c)).
		Update("telegram_chat_id", req.ChatID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to bind telegram chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "telegram chat bound"})
}

// ---- wallets ----

func createWalletHandler(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Icon string `json:"icon"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := ledgerSvc.CreateWallet(userID(c), req.Name, req.Icon)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func listWalletsHandler(c *gin.Context) {
	items, err := ledgerSvc.ListWallets(userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func deleteWalletHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := ledgerSvc.DeleteWallet(userID(c), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "wallet deleted"})
}

// ---- categories ----

func listCategoriesHandler(c *gin.Context) {
	q := db.Where("user_id IS NULL OR user_id = ?", userID(c))
	if kind := c.Query("kind"); kind != "" {
		if !models.ValidKind(kind) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
			return
		}
		q = q.Where("kind = ?", kind)
	}
	var items []models.Category
	if err := q.Order("id ASC").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func createCategoryHandler(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Icon string `json:"icon"`
		Kind string `json:"kind" binding:"required,oneof=income expense"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid := userID(c)
	cat := models.Category{UserID: &uid, Name: req.Name, Icon: req.Icon, Kind: req.Kind}
	if err := db.Create(&cat).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": cat.ID})
}

// ---- transactions ----

func createTransactionHandler(c *gin.Context) {
	var req struct {
		Amount      decimal.Decimal `json:"amount" binding:"required"`
		Kind        string          `json:"kind" binding:"required,oneof=income expense"`
		CategoryID  uint            `json:"category_id" binding:"required"`
		WalletID    uint            `json:"wallet_id" binding:"required"`
		Description string          `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid := userID(c)
	id, err := ledgerSvc.PostTransaction(ledger.PostParams{
		UserID:      uid,
		Amount:      req.Amount,
		Kind:        req.Kind,
		CategoryID:  req.CategoryID,
		WalletID:    req.WalletID,
		Description: req.Description,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	// income postings feed the current goal (clamped, best-effort)
	if req.Kind == models.KindIncome {
		if err := goalSvc.Contribute(uid, req.Amount); err != nil {
			log.Printf("contribute to current goal for user %d: %v", uid, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func listTransactionsHandler(c *gin.Context) {
	var walletID *uint
	if raw := c.Query("wallet_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet_id"})
			return
		}
		wid := uint(id)
		walletID = &wid
	}
	items, err := ledgerSvc.ListTransactions(userID(c), walletID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// homeHandler assembles the dashboard blocks: wallets with balances, the
// month summary, top spending categories, the latest posting and the
// current goal.
func homeHandler(c *gin.Context) {
	uid := userID(c)
	now := time.Now()

	wallets, err := ledgerSvc.ListWallets(uid)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	summary, err := ledgerSvc.Summary(uid, now)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	top, err := ledgerSvc.TopCategories(uid, 5, now)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	last, err := ledgerSvc.LastTransaction(uid)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	var goalBlock gin.H
	current, err := goalSvc.Current(uid)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if current != nil {
		goalBlock = gin.H{
			"id":      current.ID,
			"name":    current.Name,
			"target":  current.Target,
			"saved":   current.Saved,
			"percent": goal.Percent(current),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"wallets":          wallets,
		"month_income":     summary.Income,
		"month_expense":    summary.Expense,
		"month_balance":    summary.Balance,
		"top_categories":   top,
		"last_transaction": last,
		"goal":             goalBlock,
	})
}

// ---- goals ----

func createGoalHandler(c *gin.Context) {
	var req struct {
		Name   string          `json:"name" binding:"required"`
		Target decimal.Decimal `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := goalSvc.Create(userID(c), req.Name, req.Target)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func listGoalsHandler(c *gin.Context) {
	items, err := goalSvc.List(userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	type goalResp struct {
		models.Goal
		Percent int `json:"percent"`
	}
	out := make([]goalResp, 0, len(items))
	for i := range items {
		out = append(out, goalResp{Goal: items[i], Percent: goal.Percent(&items[i])})
	}
	c.JSON(http.StatusOK, out)
}

func currentGoalHandler(c *gin.Context) {
	g, err := goalSvc.Current(userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if g == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no goal yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": g.ID, "name": g.Name, "target": g.Target, "saved": g.Saved,
		"percent": goal.Percent(g),
	})
}

func updateGoalHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Name   string          `json:"name" binding:"required"`
		Target decimal.Decimal `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := goalSvc.Update(userID(c), id, req.Name, req.Target); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "goal updated"})
}

func deleteGoalHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := goalSvc.Delete(userID(c), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "goal deleted"})
}

func depositGoalHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		WalletID uint            `json:"wallet_id" binding:"required"`
		Amount   decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := goalSvc.Deposit(userID(c), id, req.WalletID, req.Amount); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deposited"})
}

func withdrawGoalHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		WalletID uint            `json:"wallet_id" binding:"required"`
		Amount   decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := goalSvc.Withdraw(userID(c), id, req.WalletID, req.Amount); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "withdrawn"})
}

// ---- wishes ----

func createWishHandler(c *gin.Context) {
	var req struct {
		Item         string          `json:"item" binding:"required"`
		Price        decimal.Decimal `json:"price"`
		OffsetAmount int             `json:"offset_amount"`
		OffsetUnit   string          `json:"offset_unit" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := wishSvc.Create(userID(c), req.Item, req.Price,
		wish.Offset{Amount: req.OffsetAmount, Unit: req.OffsetUnit})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func listWishesHandler(c *gin.Context) {
	items, err := wishSvc.ListActive(userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func cancelWishHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := wishSvc.Cancel(userID(c), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "wish cancelled"})
}

func postponeWishHandler(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Days int `json:"days" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := wishSvc.Postpone(userID(c), id, req.Days); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "wish postponed"})
}
