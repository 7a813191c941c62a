package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/SystemsPurge/FiLiP/internal/http"
	"github.com/SystemsPurge/FiLiP/pkg/ngsi"
)

func testRoom(t *testing.T, id string, temperature float64) *ngsi.Entity {
	t.Helper()

	entity, err := ngsi.NewEntity(id, "Room")
	require.NoError(t, err)
	require.NoError(t, entity.SetAttribute("temperature", ngsi.NewAttribute(ngsi.Number(temperature))))

	return entity
}

func entityIDs(entities []ngsi.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ID)
	}

	return ids
}

func TestEntitiesClient_Create(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var entity ngsi.Entity

		err := json.NewDecoder(r.Body).Decode(&entity)
		assert.NoError(t, err)
		assert.Equal(t, "Room1", entity.ID)
		assert.Equal(t, "Room", entity.Type)

		attr, ok := entity.Attribute("temperature")
		assert.True(t, ok)
		assert.Equal(t, "Number", attr.Type)

		w.Header().Set("Location", "/v2/entities/Room1?type=Room")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	err := entities.Create(context.Background(), testRoom(t, "Room1", 23.5))
	require.NoError(t, err)
}

func TestEntitiesClient_Create_AlreadyExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"Unprocessable","description":"Already Exists"}`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	err := entities.Create(context.Background(), testRoom(t, "Room1", 23.5))
	require.Error(t, err)
	assert.True(t, ngsi.IsConflict(err))
}

func TestEntitiesClient_Create_Nil(t *testing.T) {
	stub := newStubBroker()
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	err := entities.Create(context.Background(), nil)
	require.Error(t, err)

	var validationErr *ngsi.ValidationError

	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "entity", validationErr.Field)
	assert.Equal(t, 0, stub.RequestCount())
}

func TestEntitiesClient_Create_InvalidID(t *testing.T) {
	stub := newStubBroker()
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	err := entities.Create(context.Background(), &ngsi.Entity{ID: "Room?1", Type: "Room"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity id")
	assert.Equal(t, 0, stub.RequestCount())
}

func TestEntitiesClient_Get(t *testing.T) {
	room := testRoom(t, "Room1", 23.5)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1", r.URL.Path)
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "Room", r.URL.Query().Get("type"))
		assert.Equal(t, "temperature,pressure", r.URL.Query().Get("attrs"))
		assert.Equal(t, "accuracy", r.URL.Query().Get("metadata"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(room)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	entity, err := entities.Get(context.Background(), "Room1", &ngsi.GetEntityOptions{
		Type:     "Room",
		Attrs:    []string{"temperature", "pressure"},
		Metadata: []string{"accuracy"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Room1", entity.ID)
	assert.Equal(t, "Room", entity.Type)

	attr, ok := entity.Attribute("temperature")
	require.True(t, ok)

	value, ok := attr.Value.Number()
	require.True(t, ok)
	assert.InDelta(t, 23.5, value, 0)
}

func TestEntitiesClient_Get_PercentInID(t *testing.T) {
	// '%' is legal in NGSIv2 ids but forms an invalid percent-encoding
	// when concatenated raw into the URL path, so it must be escaped.
	const id = "humidity-50%"

	room := testRoom(t, id, 23.5)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/"+id, r.URL.Path)
		assert.Equal(t, "/v2/entities/humidity-50%25", r.URL.RawPath)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(room)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	entity, err := entities.Get(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, id, entity.ID)
}

func TestEntitiesClient_GetAttribute_PercentInID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/humidity-50%/attrs/level", r.URL.Path)
		assert.Equal(t, "/v2/entities/humidity-50%25/attrs/level", r.URL.RawPath)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"type":"Number","value":54}`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	attr, err := entities.GetAttribute(context.Background(), "humidity-50%", "level", nil)
	require.NoError(t, err)
	assert.Equal(t, "Number", attr.Type)
}

func TestEntitiesClient_Get_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room9", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"NotFound","description":"The requested entity has not been found. Check type and id"}`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	entity, err := entities.Get(context.Background(), "Room9", nil)
	require.Error(t, err)
	assert.Nil(t, entity)
	assert.True(t, ngsi.IsNotFound(err))

	var brokerErr *ngsi.BrokerError

	require.ErrorAs(t, err, &brokerErr)
	assert.Equal(t, "NotFound", brokerErr.ErrorType)
}

func TestEntitiesClient_GetKeyValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1", r.URL.Path)
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "keyValues", r.URL.Query().Get("options"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"Room1","type":"Room","temperature":23.5,"status":"open"}`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	entity, err := entities.GetKeyValues(context.Background(), "Room1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Room1", entity.ID)
	assert.Equal(t, "Room", entity.Type)
	assert.InDelta(t, 23.5, entity.Attributes["temperature"], 0)
	assert.Equal(t, "open", entity.Attributes["status"])
}

func TestEntitiesClient_Update_Overwrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs", r.URL.Path)
		assert.Equal(t, "PATCH", r.Method)
		assert.Empty(t, r.URL.Query().Get("options"))

		var attrs map[string]ngsi.Attribute

		err := json.NewDecoder(r.Body).Decode(&attrs)
		assert.NoError(t, err)
		assert.Len(t, attrs, 1)
		assert.Equal(t, "Number", attrs["temperature"].Type)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	attrs := map[string]ngsi.Attribute{"temperature": ngsi.NewAttribute(ngsi.Number(26.0))}

	err := entities.Update(context.Background(), "Room1", attrs, ngsi.UpdateOverwrite)
	require.NoError(t, err)
}

func TestEntitiesClient_Update_Append(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Empty(t, r.URL.Query().Get("options"))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	attrs := map[string]ngsi.Attribute{"pressure": ngsi.NewAttribute(ngsi.Number(720))}

	err := entities.Update(context.Background(), "Room1", attrs, ngsi.UpdateAppend)
	require.NoError(t, err)
}

func TestEntitiesClient_Update_AppendStrict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "append", r.URL.Query().Get("options"))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	attrs := map[string]ngsi.Attribute{"humidity": ngsi.NewAttribute(ngsi.Number(45))}

	err := entities.Update(context.Background(), "Room1", attrs, ngsi.UpdateAppendStrict)
	require.NoError(t, err)
}

func TestEntitiesClient_Update_AppendStrict_ExistingAttribute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "append", r.URL.Query().Get("options"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"Unprocessable","description":"one or more of the attributes in the request already exist: Room1 [temperature]"}`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	attrs := map[string]ngsi.Attribute{"temperature": ngsi.NewAttribute(ngsi.Number(26.0))}

	err := entities.Update(context.Background(), "Room1", attrs, ngsi.UpdateAppendStrict)
	require.Error(t, err)
	assert.True(t, ngsi.IsUnprocessable(err))
	assert.False(t, ngsi.IsConflict(err))
}

func TestEntitiesClient_Update_EmptyAttributes(t *testing.T) {
	stub := newStubBroker()
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	err := entities.Update(context.Background(), "Room1", map[string]ngsi.Attribute{}, ngsi.UpdateAppend)
	require.Error(t, err)

	var validationErr *ngsi.ValidationError

	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "attributes", validationErr.Field)
	assert.Equal(t, 0, stub.RequestCount())
}

func TestEntitiesClient_Update_UnknownMode(t *testing.T) {
	stub := newStubBroker()
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	attrs := map[string]ngsi.Attribute{"temperature": ngsi.NewAttribute(ngsi.Number(26.0))}

	err := entities.Update(context.Background(), "Room1", attrs, ngsi.UpdateMode("merge"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown update mode")
	assert.Equal(t, 0, stub.RequestCount())
}

func TestEntitiesClient_Replace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs", r.URL.Path)
		assert.Equal(t, "PUT", r.Method)

		var attrs map[string]ngsi.Attribute

		err := json.NewDecoder(r.Body).Decode(&attrs)
		assert.NoError(t, err)
		assert.Len(t, attrs, 1)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	attrs := map[string]ngsi.Attribute{"temperature": ngsi.NewAttribute(ngsi.Number(21.0))}

	err := entities.Replace(context.Background(), "Room1", attrs)
	require.NoError(t, err)
}

func TestEntitiesClient_Replace_EmptyAttributes(t *testing.T) {
	// PUT with an empty document wipes the attribute set, so an empty
	// map must still go on the wire.
	stub := newStubBroker(noContentResponse())
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	err := entities.Replace(context.Background(), "Room1", map[string]ngsi.Attribute{})
	require.NoError(t, err)
	require.Equal(t, 1, stub.RequestCount())

	request := stub.LastRequest()
	assert.Equal(t, "PUT", request.Method)
	assert.Equal(t, "/v2/entities/Room1/attrs", request.Path)
	assert.JSONEq(t, `{}`, string(request.Body))
}

func TestEntitiesClient_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1", r.URL.Path)
		assert.Equal(t, "DELETE", r.Method)
		assert.Empty(t, r.URL.Query().Get("type"))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	err := entities.Delete(context.Background(), "Room1", nil)
	require.NoError(t, err)
}

func TestEntitiesClient_Delete_WithType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1", r.URL.Path)
		assert.Equal(t, "DELETE", r.Method)
		assert.Equal(t, "Room", r.URL.Query().Get("type"))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	err := entities.Delete(context.Background(), "Room1", &ngsi.DeleteEntityOptions{Type: "Room"})
	require.NoError(t, err)
}

func TestEntitiesClient_Query(t *testing.T) {
	page1, err := json.Marshal([]ngsi.Entity{*testRoom(t, "Room1", 21), *testRoom(t, "Room2", 22)})
	require.NoError(t, err)
	page2, err := json.Marshal([]ngsi.Entity{*testRoom(t, "Room3", 23)})
	require.NoError(t, err)

	stub := newStubBroker(
		pageResponse(3, string(page1)),
		pageResponse(3, string(page2)),
	)
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	filter := ngsi.NewQueryFilter().WithType("Room").WithOrderBy("id").WithLimit(2)
	iterator := entities.Query(context.Background(), filter)

	results, err := iterator.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"Room1", "Room2", "Room3"}, entityIDs(results))
	assert.Equal(t, 3, iterator.TotalCount())

	requests := stub.Requests()
	require.Len(t, requests, 2)

	for _, request := range requests {
		assert.Equal(t, "GET", request.Method)
		assert.Equal(t, "/v2/entities", request.Path)
		assert.Equal(t, "Room", request.Query.Get("type"))
		assert.Equal(t, "id", request.Query.Get("orderBy"))
		assert.Equal(t, "count", request.Query.Get("options"))
		assert.Equal(t, "2", request.Query.Get("limit"))
	}

	assert.Empty(t, requests[0].Query.Get("offset"))
	assert.Equal(t, "2", requests[1].Query.Get("offset"))
}

func TestEntitiesClient_Query_PageSizeEquivalence(t *testing.T) {
	rooms := make([]ngsi.Entity, 0, 5)
	for i := 1; i <= 5; i++ {
		rooms = append(rooms, *testRoom(t, fmt.Sprintf("Room%d", i), float64(20+i)))
	}

	pages := func(size int) []stubResponse {
		responses := make([]stubResponse, 0, len(rooms)/size+1)
		for start := 0; start < len(rooms); start += size {
			end := start + size
			if end > len(rooms) {
				end = len(rooms)
			}

			body, err := json.Marshal(rooms[start:end])
			require.NoError(t, err)

			responses = append(responses, pageResponse(len(rooms), string(body)))
		}

		return responses
	}

	small := newStubBroker(pages(2)...)
	defer small.Close()

	large := newStubBroker(pages(5)...)
	defer large.Close()

	baseFilter := ngsi.NewQueryFilter().WithType("Room").WithOrderBy("id")

	smallClient := NewEntitiesClient(internalhttp.NewClient(small.URL(), nil), ngsi.DefaultLimit)
	smallResults, err := smallClient.Query(context.Background(), baseFilter.Clone().WithLimit(2)).All()
	require.NoError(t, err)

	largeClient := NewEntitiesClient(internalhttp.NewClient(large.URL(), nil), ngsi.DefaultLimit)
	largeResults, err := largeClient.Query(context.Background(), baseFilter.Clone().WithLimit(5)).All()
	require.NoError(t, err)

	// Same ordered result regardless of how the sequence was chopped
	// into pages.
	assert.Equal(t, entityIDs(largeResults), entityIDs(smallResults))
	assert.Equal(t, 3, small.RequestCount())
	assert.Equal(t, 1, large.RequestCount())
}

func TestEntitiesClient_Query_InvalidFilter(t *testing.T) {
	stub := newStubBroker()
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	filter := ngsi.NewQueryFilter().WithID("Room1").WithIDPattern("Room.*")
	iterator := entities.Query(context.Background(), filter)

	require.True(t, iterator.HasNext())

	_, err := iterator.Next()
	require.Error(t, err)

	var validationErr *ngsi.ValidationError

	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, 0, stub.RequestCount())
}

func TestEntitiesClient_QueryKeyValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities", r.URL.Path)
		assert.Equal(t, "count,keyValues", r.URL.Query().Get("options"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Fiware-Total-Count", "2")
		fmt.Fprint(w, `[{"id":"Room1","type":"Room","temperature":21},{"id":"Room2","type":"Room","temperature":22}]`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	results, err := entities.QueryKeyValues(context.Background(), nil).All()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Room1", results[0].ID)
	assert.InDelta(t, 21.0, results[0].Attributes["temperature"], 0)
}

func TestEntitiesClient_GetAttribute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs/temperature", r.URL.Path)
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "Room", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"type":"Number","value":23.5,"metadata":{"accuracy":{"type":"Number","value":0.5}}}`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	attr, err := entities.GetAttribute(context.Background(), "Room1", "temperature", &ngsi.AttributeOptions{Type: "Room"})
	require.NoError(t, err)
	assert.Equal(t, "Number", attr.Type)

	value, ok := attr.Value.Number()
	require.True(t, ok)
	assert.InDelta(t, 23.5, value, 0)
	assert.Contains(t, attr.Metadata, "accuracy")
}

func TestEntitiesClient_GetAttribute_ReservedName(t *testing.T) {
	stub := newStubBroker()
	defer stub.Close()

	entities := NewEntitiesClient(internalhttp.NewClient(stub.URL(), nil), ngsi.DefaultLimit)

	_, err := entities.GetAttribute(context.Background(), "Room1", "id", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attribute name")
	assert.Equal(t, 0, stub.RequestCount())
}

func TestEntitiesClient_UpdateAttribute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs/temperature", r.URL.Path)
		assert.Equal(t, "PUT", r.Method)

		var attr ngsi.Attribute

		err := json.NewDecoder(r.Body).Decode(&attr)
		assert.NoError(t, err)
		assert.Equal(t, "Number", attr.Type)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	err := entities.UpdateAttribute(context.Background(), "Room1", "temperature", ngsi.NewAttribute(ngsi.Number(25.0)), nil)
	require.NoError(t, err)
}

func TestEntitiesClient_DeleteAttribute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs/pressure", r.URL.Path)
		assert.Equal(t, "DELETE", r.Method)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	err := entities.DeleteAttribute(context.Background(), "Room1", "pressure", nil)
	require.NoError(t, err)
}

func TestEntitiesClient_GetAttributeValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs/temperature/value", r.URL.Path)
		assert.Equal(t, "GET", r.Method)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `23.5`)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	value, err := entities.GetAttributeValue(context.Background(), "Room1", "temperature", nil)
	require.NoError(t, err)

	number, ok := value.Number()
	require.True(t, ok)
	assert.InDelta(t, 23.5, number, 0)
}

func TestEntitiesClient_UpdateAttributeValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/entities/Room1/attrs/temperature/value", r.URL.Path)
		assert.Equal(t, "PUT", r.Method)

		var value float64

		err := json.NewDecoder(r.Body).Decode(&value)
		assert.NoError(t, err)
		assert.InDelta(t, 26.5, value, 0)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &Client{httpClient: internalhttp.NewClient(server.URL, nil)}
	entities := NewEntitiesClient(client.httpClient, ngsi.DefaultLimit)

	err := entities.UpdateAttributeValue(context.Background(), "Room1", "temperature", ngsi.Number(26.5), nil)
	require.NoError(t, err)
}
