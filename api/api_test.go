/*
Copyright 2025 Magmad Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hodlmetight/magmad"
	"github.com/hodlmetight/magmad/config"
	"github.com/hodlmetight/magmad/database/mocks"
	"github.com/hodlmetight/magmad/internal/apierror"
	"github.com/hodlmetight/magmad/model"
)

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource, *magmad.Scheduler) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		DataSource: config.DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/magmad?sslmode=disable"},
	})

	mockDS := new(mocks.MockDataSource)
	m := magmad.NewMockMagmad(mockDS, nil, new(magmad.MockMarketplace), new(magmad.MockNode), nil, new(magmad.MockFees), nil)
	scheduler, err := magmad.NewScheduler(m)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}

	return NewAPI(m, scheduler).Router(), mockDS, scheduler
}

func serveRequest(router *gin.Engine, method, route string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, route, nil)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := serveRequest(router, "GET", "/")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestGetOrder(t *testing.T) {
	router, mockDS, _ := setupRouter(t)

	now := time.Now()
	orderID := gofakeit.UUID()
	order := &model.Order{
		OrderID:      orderID,
		BuyerPubkey:  "02abcdef",
		BuyerAlias:   gofakeit.Name(),
		CapacitySats: 5000000,
		PriceSats:    50000,
		Status:       model.StatusAwaitingPayment,
		CreatedAt:    now,
	}
	transitions := []model.StatusTransition{
		{OrderID: orderID, FromStatus: model.StatusDiscovered, ToStatus: model.StatusValidating, CreatedAt: now},
	}

	mockDS.On("GetOrder", mock.Anything, orderID).Return(order, nil)
	mockDS.On("GetOrderTransitions", mock.Anything, orderID).Return(transitions, nil)

	resp := serveRequest(router, "GET", "/orders/"+orderID)
	assert.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Order   model.Order              `json:"order"`
		History []model.StatusTransition `json:"history"`
	}
	err := json.NewDecoder(resp.Body).Decode(&body)
	assert.NoError(t, err)
	assert.Equal(t, orderID, body.Order.OrderID)
	assert.Len(t, body.History, 1)
}

func TestGetOrderNotFound(t *testing.T) {
	router, mockDS, _ := setupRouter(t)

	mockDS.On("GetOrder", mock.Anything, "missing").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "order missing not found", nil))

	resp := serveRequest(router, "GET", "/orders/missing")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetAllOrders(t *testing.T) {
	router, mockDS, _ := setupRouter(t)

	orders := []*model.Order{
		{OrderID: "order-1", Status: model.StatusPaid},
		{OrderID: "order-2", Status: model.StatusAwaitingPayment},
	}
	mockDS.On("ListOrders", mock.Anything, 50, 0).Return(orders, nil)

	resp := serveRequest(router, "GET", "/orders")
	assert.Equal(t, http.StatusOK, resp.Code)

	var body []model.Order
	err := json.NewDecoder(resp.Body).Decode(&body)
	assert.NoError(t, err)
	assert.Len(t, body, 2)
}

func TestGetAllOrdersBadLimit(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := serveRequest(router, "GET", "/orders?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetGuardStatus(t *testing.T) {
	router, mockDS, _ := setupRouter(t)

	mockDS.On("GetHaltFlag", mock.Anything).Return(&model.HaltFlag{
		Reason: "channel open failed for order order-9",
		SetAt:  time.Now(),
	}, nil)

	resp := serveRequest(router, "GET", "/guard")
	assert.Equal(t, http.StatusOK, resp.Code)

	var body map[string]interface{}
	err := json.NewDecoder(resp.Body).Decode(&body)
	assert.NoError(t, err)
	assert.Equal(t, true, body["halted"])
	assert.Equal(t, "channel open failed for order order-9", body["reason"])
}

func TestTriggerRun(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := serveRequest(router, "POST", "/trigger")
	assert.Equal(t, http.StatusAccepted, resp.Code)
}
