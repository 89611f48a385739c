package tests

import (
	"fmt"
	"net/http"
	"restaurant_platform/kitchen/schema"
	"restaurant_platform/kitchen/services"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t)

	for i := 0; i < 3; i++ {
		username := fmt.Sprintf("manager%d", i)
		email := fmt.Sprintf("manager%d@mail.com", i)
		password := fmt.Sprintf("manager%d_password", i)

		c := env.newClient()
		registered, err := c.register(username, email, password)
		require.NoError(t, err)
		assert.Equal(t, "bearer", registered.TokenType)
		assert.Equal(t, schema.ManagerRole, registered.User.Role)
		assert.True(t, registered.StoreSetupRequired)

		_, err = c.register(username, "other"+email, password)
		assert.Equal(t, http.StatusConflict, statusOf(err))

		_, wrongPassword := c.login(username, "wrong_password")
		assert.Equal(t, http.StatusUnauthorized, statusOf(wrongPassword))

		_, unknownUser := c.login("nobody", password)
		assert.Equal(t, http.StatusUnauthorized, statusOf(unknownUser))
		assert.NotEmpty(t, errorBodyOf(unknownUser).Error)
		assert.Equal(t, errorBodyOf(wrongPassword), errorBodyOf(unknownUser))

		login, err := c.login(username, password)
		require.NoError(t, err)
		assert.Equal(t, registered.User.Id, login.User.Id)
		assert.Equal(t, registered.User.StoreId, login.User.StoreId)

		var me struct {
			User services.UserInfo `json:"user"`
		}
		require.NoError(t, c.Get("/auth/me").Do(&me))
		assert.Equal(t, username, me.User.Username)
		assert.Equal(t, email, me.User.Email)
	}
}

func TestEachRegistrationCreatesItsOwnStore(t *testing.T) {
	env := setupTestEnv(t)

	a := env.newManager(t, "alice")
	b := env.newManager(t, "bobby")
	assert.NotEqual(t, a.user.StoreId, b.user.StoreId)
}

func TestManagerEmailIsUnique(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	_, err := c.register("first", "shared@mail.com", "first_password")
	require.NoError(t, err)

	_, err = c.register("second", "shared@mail.com", "second_password")
	assert.Equal(t, http.StatusConflict, statusOf(err))
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	_, err := c.register("ab", "not-an-email", "short")
	require.Equal(t, http.StatusBadRequest, statusOf(err))

	fields := fieldsOf(err)
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestMissingOrInvalidToken(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	assert.Equal(t, http.StatusUnauthorized, statusOf(c.Get("/ingredients").Do(nil)))

	c.authToken = "not.a.token"
	assert.Equal(t, http.StatusUnauthorized, statusOf(c.Get("/ingredients").Do(nil)))
}

func TestEmployeePermissions(t *testing.T) {
	env := setupTestEnv(t)

	manager := env.newManager(t, "manager")
	employee := env.newEmployee(t, manager, "employee")
	assert.Equal(t, schema.EmployeeRole, employee.user.Role)
	assert.Equal(t, manager.user.StoreId, employee.user.StoreId)

	_, err := employee.addUser("another", "another@mail.com", "another_password", schema.EmployeeRole)
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	_, err = employee.setupStore("SG", nil, nil)
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	ingredient, err := employee.createIngredient("flour", "g", 0.001)
	require.NoError(t, err)

	err = employee.Delete("/ingredients/" + ingredient.Id.String()).Do(nil)
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	err = manager.Delete("/ingredients/" + ingredient.Id.String()).Do(nil)
	assert.NoError(t, err)
}

func TestDeactivatedUserIsLockedOut(t *testing.T) {
	env := setupTestEnv(t)

	manager := env.newManager(t, "manager")
	employee := env.newEmployee(t, manager, "employee")

	require.NoError(t, employee.Get("/auth/me").Do(nil))

	var updated services.UserInfo
	err := manager.Patch("/users/" + employee.user.Id.String()).Json(map[string]string{"status": schema.InactiveStatus}).Do(&updated)
	require.NoError(t, err)
	assert.Equal(t, schema.InactiveStatus, updated.Status)

	assert.Equal(t, http.StatusUnauthorized, statusOf(employee.Get("/auth/me").Do(nil)))

	fresh := env.newClient()
	_, err = fresh.login("employee", "employee_password")
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))
}

func TestLastManagerCannotBeRemoved(t *testing.T) {
	env := setupTestEnv(t)

	manager := env.newManager(t, "manager")

	err := manager.Patch("/users/" + manager.user.Id.String()).Json(map[string]string{"role": schema.EmployeeRole}).Do(nil)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	err = manager.Patch("/users/" + manager.user.Id.String()).Json(map[string]string{"status": schema.InactiveStatus}).Do(nil)
	assert.Equal(t, http.StatusConflict, statusOf(err))

	_, err = manager.addUser("deputy", "deputy@mail.com", "deputy_password", schema.ManagerRole)
	require.NoError(t, err)

	err = manager.Patch("/users/" + manager.user.Id.String()).Json(map[string]string{"role": schema.EmployeeRole}).Do(nil)
	assert.NoError(t, err)
}

func TestUsersAreScopedToStore(t *testing.T) {
	env := setupTestEnv(t)

	a := env.newManager(t, "alice")
	b := env.newManager(t, "bobby")
	env.newEmployee(t, a, "alice_cook")

	var users []services.UserInfo
	require.NoError(t, b.Get("/users").Do(&users))
	require.Len(t, users, 1)
	assert.Equal(t, "bobby", users[0].Username)

	err := b.Patch("/users/" + a.user.Id.String()).Json(map[string]string{"status": schema.InactiveStatus}).Do(nil)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestChangePassword(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newManager(t, "manager")

	err := c.Post("/auth/change-password").Json(map[string]string{
		"current_password": "wrong_password",
		"new_password":     "brand_new_password",
	}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	err = c.Post("/auth/change-password").Json(map[string]string{
		"current_password": "manager_password",
		"new_password":     "brand_new_password",
	}).Do(nil)
	require.NoError(t, err)

	fresh := env.newClient()
	_, err = fresh.login("manager", "manager_password")
	assert.Equal(t, http.StatusUnauthorized, statusOf(err))

	fresh = env.newClient()
	_, err = fresh.login("manager", "brand_new_password")
	assert.NoError(t, err)
}

func TestPasswordReset(t *testing.T) {
	env := setupTestEnv(t)

	env.newManager(t, "manager")

	var msg struct {
		Message string `json:"message"`
	}
	c := env.newClient()
	require.NoError(t, c.Post("/auth/forgot-password").Json(map[string]string{"identifier": "nobody@mail.com"}).Do(&msg))
	unknownMessage := msg.Message

	require.NoError(t, c.Post("/auth/forgot-password").Json(map[string]string{"identifier": "manager@mail.com"}).Do(&msg))
	assert.Equal(t, unknownMessage, msg.Message)

	token := env.notifier.token("manager")
	require.NotEmpty(t, token)

	err := c.Post("/auth/reset-password").Json(map[string]string{"token": "garbage", "new_password": "reset_password"}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	err = c.Post("/auth/reset-password").Json(map[string]string{"token": token, "new_password": "reset_password"}).Do(nil)
	require.NoError(t, err)

	_, err = c.login("manager", "reset_password")
	require.NoError(t, err)

	// a token is only good until the password changes
	err = c.Post("/auth/reset-password").Json(map[string]string{"token": token, "new_password": "another_password"}).Do(nil)
	assert.Equal(t, http.StatusBadRequest, statusOf(err))
}

func TestUpdateProfile(t *testing.T) {
	env := setupTestEnv(t)

	a := env.newManager(t, "alice")
	env.newManager(t, "bobby")

	var info services.UserInfo
	require.NoError(t, a.Patch("/auth/profile").Json(map[string]string{"name": "Alice Tan"}).Do(&info))
	assert.Equal(t, "Alice Tan", info.Name)

	err := a.Patch("/auth/profile").Json(map[string]string{"email": "bobby@mail.com"}).Do(nil)
	assert.Equal(t, http.StatusConflict, statusOf(err))
}

func TestLoginIsRateLimited(t *testing.T) {
	env := setupTestEnv(t, withLoginRateLimit(2))

	c := env.newClient()
	for i := 0; i < 2; i++ {
		_, err := c.login("nobody", "nobody_password")
		assert.Equal(t, http.StatusUnauthorized, statusOf(err))
	}

	_, err := c.login("nobody", "nobody_password")
	assert.Equal(t, http.StatusTooManyRequests, statusOf(err))
}
