package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rebuild-dev/rebuild-server/pkg/storage"
	"github.com/rebuild-dev/rebuild-server/tests"
)

func (s *APITestSuite) connectEvents() (*websocket.Conn, func()) {
	server := httptest.NewServer(s.router)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + EventsPath
	connection, response, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.Require().NoError(response.Body.Close())

	s.Eventually(func() bool { return s.hub.Subscribers() == 1 }, tests.DefaultTestTimeout, tests.PollInterval)
	return connection, func() {
		s.NoError(connection.Close())
		server.Close()
	}
}

func (s *APITestSuite) readEvent(connection *websocket.Conn) map[string]interface{} {
	s.Require().NoError(connection.SetReadDeadline(time.Now().Add(tests.DefaultTestTimeout)))
	var event map[string]interface{}
	s.Require().NoError(connection.ReadJSON(&event))
	return event
}

func (s *APITestSuite) TestEventsAreStreamed() {
	connection, disconnect := s.connectEvents()
	defer disconnect()

	recorder := s.request(http.MethodPost, RolesPath, map[string]string{"name": "ops"})
	s.Require().Equal(http.StatusCreated, recorder.Code)
	event := s.readEvent(connection)
	s.Equal(string(storage.Creation), event["type"])
	s.Equal(RolesPath[1:], event["resource"])
	s.EqualValues(4, event["id"])
	entity, ok := event["entity"].(map[string]interface{})
	s.Require().True(ok)
	s.Equal("ops", entity["name"])

	recorder = s.request(http.MethodPatch, UsersPath+"/2", map[string]string{"status": "inactive"})
	s.Require().Equal(http.StatusOK, recorder.Code)
	event = s.readEvent(connection)
	s.Equal(string(storage.Update), event["type"])
	s.Equal(UsersPath[1:], event["resource"])

	recorder = s.request(http.MethodDelete, UsersPath+"/2", nil)
	s.Require().Equal(http.StatusNoContent, recorder.Code)
	event = s.readEvent(connection)
	s.Equal(string(storage.Deletion), event["type"])
	s.EqualValues(2, event["id"])
}

func (s *APITestSuite) TestSubscriberIsRemovedOnClose() {
	connection, disconnect := s.connectEvents()
	s.Require().NoError(connection.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	disconnect()
	s.Eventually(func() bool { return s.hub.Subscribers() == 0 }, tests.DefaultTestTimeout, tests.PollInterval)
}

func (s *APITestSuite) TestPublishDoesNotBlock() {
	subscriber := s.hub.subscribe()
	defer s.hub.unsubscribe(subscriber)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*EventHubBufferSize; i++ {
			s.hub.Publish(storage.Event{Type: storage.Creation, Store: "users", ID: i})
		}
		close(done)
	}()
	s.True(tests.ChannelReceivesSomething(done, tests.DefaultTestTimeout), "Publish blocked on a full subscriber")
	s.Len(subscriber, EventHubBufferSize)
}
