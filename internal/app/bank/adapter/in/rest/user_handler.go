package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
)

// UserHandler /users 路由，單純的 CRUD
type UserHandler struct {
	users *usecase.UserService
}

func NewUserHandler(users *usecase.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) register(r gin.IRouter) {
	g := r.Group("/users")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:userName", h.getByUserName)
	// 同 /accounts，PUT /users/{id} 的 id 掛在 :userName 上
	g.PUT("/:userName", h.update)
	g.GET("/:userName/:id", h.get)
	g.DELETE("/:userName/:id", h.delete)
}

func (h *UserHandler) list(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	respond(c, users, err)
}

func (h *UserHandler) getByUserName(c *gin.Context) {
	user, err := h.users.GetByUserName(c.Request.Context(), c.Param("userName"))
	respond(c, user, err)
}

func (h *UserHandler) get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("userName"), c.Param("id"))
	respond(c, user, err)
}

func (h *UserHandler) create(c *gin.Context) {
	var body domain.User
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	user, err := h.users.Create(c.Request.Context(), &body)
	respond(c, user, err)
}

func (h *UserHandler) update(c *gin.Context) {
	id := c.Param("userName")
	var body domain.User
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	if body.ID != id {
		writeError(c, domain.InvalidData("Parameter 'id' does not match id from request body"))
		return
	}
	user, err := h.users.Update(c.Request.Context(), &body)
	respond(c, user, err)
}

func (h *UserHandler) delete(c *gin.Context) {
	user, err := h.users.Delete(c.Request.Context(), c.Param("userName"), c.Param("id"))
	respond(c, user, err)
}
