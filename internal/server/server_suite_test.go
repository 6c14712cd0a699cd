package server_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gorilla/websocket"

	"github.com/issacpacheco/chat-stream-gemini/internal/chat"
	"github.com/issacpacheco/chat-stream-gemini/internal/event"
	"github.com/issacpacheco/chat-stream-gemini/internal/persona"
	"github.com/issacpacheco/chat-stream-gemini/internal/provider"
	"github.com/issacpacheco/chat-stream-gemini/internal/provider/providertest"
	"github.com/issacpacheco/chat-stream-gemini/internal/registry"
	"github.com/issacpacheco/chat-stream-gemini/internal/relay"
	"github.com/issacpacheco/chat-stream-gemini/internal/server"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

func TestServerSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

const pikachu = "¡Pikachu es un Pokémon de tipo Eléctrico! ⚡️"

// stack is a running server wired to a mock LLM endpoint.
type stack struct {
	llm      *providertest.Server
	registry *registry.Registry
	bus      *event.Bus
	srv      *server.Server
	base     string
	done     chan error
}

func startStack(collab func(llm *providertest.Server) chat.Collaborator) *stack {
	st := &stack{done: make(chan error, 1)}
	st.llm = providertest.NewServer(providertest.ServerConfig{
		Responses: map[string]string{"pikachu": pikachu},
		Fallback:  "¡Pregúntame por un Pokémon!",
	})
	DeferCleanup(st.llm.Close)

	st.bus = event.NewBus()
	DeferCleanup(st.bus.Close)

	src := persona.NewSource(persona.Default())
	st.registry = registry.New(collab(st.llm), src.SessionConfig, registry.WithBus(st.bus))
	rl := relay.New(st.registry, relay.WithBus(st.bus))

	cfg := server.DefaultConfig()
	cfg.WebSocket.PingInterval = 0
	st.srv = server.New(cfg, st.registry, rl, st.bus)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	st.base = ln.Addr().String()
	go func() { st.done <- st.srv.Serve(ln) }()

	DeferCleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = st.srv.Shutdown(ctx)
	})
	return st
}

func geminiCollaborator(llm *providertest.Server) chat.Collaborator {
	p, err := provider.NewGeminiProvider(context.Background(), &provider.GeminiConfig{
		APIKey:  "test-key",
		BaseURL: llm.URL() + "/v1",
	})
	Expect(err).NotTo(HaveOccurred())
	return chat.NewProviderCollaborator(p, provider.DefaultGeminiModel)
}

func (st *stack) dial(clientID string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+st.base+"/ws/chat/"+clientID, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(conn.Close)
	return conn
}

func (st *stack) delete(clientID string) int {
	req, err := http.NewRequest(http.MethodDelete, "http://"+st.base+"/api/sessions/"+clientID, nil)
	Expect(err).NotTo(HaveOccurred())
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	resp.Body.Close()
	return resp.StatusCode
}

func readFrame(conn *websocket.Conn) types.Frame {
	var f types.Frame
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	Expect(conn.ReadJSON(&f)).To(Succeed())
	return f
}

// readReply reads one start..end reply and returns the concatenated text.
func readReply(conn *websocket.Conn) string {
	Expect(readFrame(conn)).To(Equal(types.StartFrame()))
	var sb strings.Builder
	for {
		f := readFrame(conn)
		switch f.Type {
		case types.FrameChunk:
			sb.WriteString(f.Content)
		case types.FrameEnd:
			return sb.String()
		default:
			Fail("unexpected frame: " + f.Error)
		}
	}
}

var _ = Describe("Chat relay over websocket", func() {
	var st *stack

	BeforeEach(func() {
		st = startStack(geminiCollaborator)
	})

	It("streams a reply framed by start and end", func() {
		conn := st.dial("client-1")
		Expect(conn.WriteMessage(websocket.TextMessage, []byte("Háblame de Pikachu"))).To(Succeed())

		Expect(readReply(conn)).To(Equal(pikachu))

		reqs := st.llm.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Body["stream"]).To(BeTrue())
		Expect(reqs[0].Body["temperature"]).To(BeNumerically("~", 0.2, 0.001))
		msgs := reqs[0].Body["messages"].([]any)
		Expect(msgs[0].(map[string]any)["role"]).To(Equal("system"))
	})

	It("answers messages in order on one connection", func() {
		conn := st.dial("client-2")
		Expect(conn.WriteMessage(websocket.TextMessage, []byte("pikachu"))).To(Succeed())
		Expect(conn.WriteMessage(websocket.TextMessage, []byte("¿y Charmander?"))).To(Succeed())

		Expect(readReply(conn)).To(Equal(pikachu))
		Expect(readReply(conn)).To(Equal("¡Pregúntame por un Pokémon!"))

		reqs := st.llm.Requests()
		Expect(reqs).To(HaveLen(2))
		// system, user, assistant, user
		Expect(reqs[1].Body["messages"]).To(HaveLen(4))
	})

	It("keeps the conversation across reconnects until it is deleted", func() {
		conn := st.dial("client-3")
		Expect(conn.WriteMessage(websocket.TextMessage, []byte("pikachu"))).To(Succeed())
		readReply(conn)
		Expect(conn.Close()).To(Succeed())

		Eventually(st.registry.Len).Should(Equal(1))

		conn = st.dial("client-3")
		Expect(conn.WriteMessage(websocket.TextMessage, []byte("otra vez"))).To(Succeed())
		readReply(conn)
		Expect(st.llm.Requests()[1].Body["messages"]).To(HaveLen(4))

		Expect(st.delete("client-3")).To(Equal(http.StatusOK))
		Expect(st.delete("client-3")).To(Equal(http.StatusNotFound))

		Expect(conn.WriteMessage(websocket.TextMessage, []byte("¿me recuerdas?"))).To(Succeed())
		readReply(conn)
		// The live connection keeps its handle; a new connection starts fresh.
		conn2 := st.dial("client-3")
		Expect(conn2.WriteMessage(websocket.TextMessage, []byte("hola"))).To(Succeed())
		readReply(conn2)
		reqs := st.llm.Requests()
		Expect(reqs[len(reqs)-1].Body["messages"]).To(HaveLen(2))
	})

	It("uses the client identifier exactly as given", func() {
		padded := st.dial("%20client-5")
		Expect(padded.WriteMessage(websocket.TextMessage, []byte("pikachu"))).To(Succeed())
		readReply(padded)

		_, ok := st.registry.Get(" client-5")
		Expect(ok).To(BeTrue())
		_, ok = st.registry.Get("client-5")
		Expect(ok).To(BeFalse())

		Expect(st.delete("client-5")).To(Equal(http.StatusNotFound))
		Expect(st.delete("%20client-5")).To(Equal(http.StatusOK))
		Expect(st.registry.Len()).To(Equal(0))
	})

	It("interleaves independent clients", func() {
		a := st.dial("client-a")
		b := st.dial("client-b")
		Expect(a.WriteMessage(websocket.TextMessage, []byte("pikachu"))).To(Succeed())
		Expect(b.WriteMessage(websocket.TextMessage, []byte("hola"))).To(Succeed())

		Expect(readReply(b)).To(Equal("¡Pregúntame por un Pokémon!"))
		Expect(readReply(a)).To(Equal(pikachu))
		Expect(st.registry.Len()).To(Equal(2))
	})

	It("reports an upstream failure once and closes", func() {
		failing := providertest.NewServer(providertest.ServerConfig{Status: http.StatusTooManyRequests})
		DeferCleanup(failing.Close)
		p, err := provider.NewGeminiProvider(context.Background(), &provider.GeminiConfig{
			APIKey:  "test-key",
			BaseURL: failing.URL() + "/v1",
		})
		Expect(err).NotTo(HaveOccurred())
		st = startStack(func(*providertest.Server) chat.Collaborator {
			return chat.NewProviderCollaborator(p, provider.DefaultGeminiModel)
		})

		conn := st.dial("client-f")
		Expect(conn.WriteMessage(websocket.TextMessage, []byte("pikachu"))).To(Succeed())

		Expect(readFrame(conn)).To(Equal(types.StartFrame()))
		f := readFrame(conn)
		Expect(f.IsError()).To(BeTrue())
		Expect(f.Error).To(HavePrefix("internal server error"))

		_, _, err = conn.ReadMessage()
		Expect(websocket.IsCloseError(err, websocket.CloseNormalClosure)).To(BeTrue())
		Expect(st.registry.Len()).To(Equal(1))
	})

	It("closes live connections on shutdown", func() {
		conn := st.dial("client-s")
		Expect(conn.WriteMessage(websocket.TextMessage, []byte("pikachu"))).To(Succeed())
		readReply(conn)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		Expect(st.srv.Shutdown(ctx)).To(Succeed())
		Eventually(st.done).Should(Receive(BeNil()))

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		Expect(err).To(HaveOccurred())
		var ne net.Error
		Expect(errors.As(err, &ne) && ne.Timeout()).To(BeFalse(), "connection should close, not time out")
	})
})

var _ = Describe("Chat relay without a provider", func() {
	It("sends one error frame and keeps no session", func() {
		st := startStack(func(*providertest.Server) chat.Collaborator {
			return chat.Unavailable(errors.New("no API key configured"))
		})

		conn := st.dial("client-d")
		f := readFrame(conn)
		Expect(f.IsError()).To(BeTrue())
		Expect(f.Error).To(ContainSubstring("no API key configured"))

		_, _, err := conn.ReadMessage()
		Expect(err).To(HaveOccurred())
		Expect(st.registry.Len()).To(Equal(0))
	})
})
