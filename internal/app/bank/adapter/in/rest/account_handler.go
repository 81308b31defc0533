package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

// AccountHandler /accounts 路由
type AccountHandler struct {
	accounts *usecase.AccountService
	core     *usecase.TransactionCore
}

func NewAccountHandler(accounts *usecase.AccountService, core *usecase.TransactionCore) *AccountHandler {
	return &AccountHandler{accounts: accounts, core: core}
}

func (h *AccountHandler) register(r gin.IRouter) {
	g := r.Group("/accounts")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:userName", h.listByOwner)
	// gin 同一層只能有一個萬用字元名稱，PUT /accounts/{id} 的 id 因此掛在 :userName 上
	g.PUT("/:userName", h.update)
	g.GET("/:userName/:id", h.get)
	g.DELETE("/:userName/:id", h.delete)
	g.GET("/:userName/:id/balance", h.balance)
	g.PUT("/:userName/:id/withdraw", h.withdraw)
	g.PUT("/:userName/:id/deposit", h.deposit)
	g.PUT("/:userName/:id/transfer", h.transfer)
}

func (h *AccountHandler) list(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	respond(c, accounts, err)
}

func (h *AccountHandler) listByOwner(c *gin.Context) {
	accounts, err := h.accounts.ListByOwner(c.Request.Context(), c.Param("userName"))
	respond(c, accounts, err)
}

func (h *AccountHandler) get(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), c.Param("userName"), c.Param("id"))
	respond(c, account, err)
}

func (h *AccountHandler) balance(c *gin.Context) {
	amount, err := h.accounts.Balance(c.Request.Context(), c.Param("userName"), c.Param("id"))
	respond(c, amount, err)
}

func (h *AccountHandler) create(c *gin.Context) {
	var body domain.Account
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	account, err := h.accounts.Create(c.Request.Context(), &body)
	respond(c, account, err)
}

func (h *AccountHandler) update(c *gin.Context) {
	id := c.Param("userName")
	var body domain.Account
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	if body.ID != id {
		writeError(c, domain.InvalidData("Parameter 'id' does not match id from request body"))
		return
	}
	account, err := h.accounts.Update(c.Request.Context(), &body)
	respond(c, account, err)
}

func (h *AccountHandler) delete(c *gin.Context) {
	account, err := h.accounts.Delete(c.Request.Context(), c.Param("userName"), c.Param("id"))
	respond(c, account, err)
}

func (h *AccountHandler) withdraw(c *gin.Context) {
	var body withdrawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	account, err := h.core.WithdrawAmount(c.Request.Context(), domain.WithdrawRequest{
		AccountID: c.Param("id"),
		Pin:       body.Pin,
		Amount:    body.Amount,
	})
	respond(c, account, err)
}

func (h *AccountHandler) deposit(c *gin.Context) {
	var body depositBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	account, err := h.core.DepositAmount(c.Request.Context(), domain.DepositRequest{
		AccountID:     c.Param("id"),
		AccountNumber: body.AccountNumber,
		Amount:        body.Amount,
	})
	respond(c, account, err)
}

func (h *AccountHandler) transfer(c *gin.Context) {
	var body transferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	account, err := h.core.TransferAmount(c.Request.Context(), domain.TransferRequest{
		AccountID:                c.Param("id"),
		SourceAccountNumber:      body.SourceAccountNumber,
		SourcePin:                body.SourcePin,
		DestinationAccountNumber: body.DestinationAccountNumber,
		Amount:                   body.Amount,
	})
	respond(c, account, err)
}
