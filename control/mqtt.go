package control

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/wippyai/rive-ograf/errors"
	"github.com/wippyai/rive-ograf/graphic"
)

const queueSize = 64

// ClientOptions configure Dial.
type ClientOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Dial connects a paho client to the broker.
func Dial(ctx context.Context, opts ClientOptions) (paho.Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			Logger().Warn("mqtt connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(paho.Client) {
			Logger().Info("mqtt connected", zap.String("broker", opts.Broker))
		})
	if opts.Username != "" {
		po.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	client := paho.NewClient(po)
	if err := wait(ctx, client.Connect(), opts.Timeout); err != nil {
		return nil, errors.Wrap(errors.PhaseControl, errors.KindInternal, err, "connect to "+opts.Broker)
	}
	return client, nil
}

// wait blocks until tok completes, ctx ends or timeout passes.
func wait(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New(errors.PhaseControl, errors.KindInternal).Detail("mqtt timeout after %s", timeout).Build()
	}
}

// BridgeOptions configure a Bridge.
type BridgeOptions struct {
	// Topic prefixes the request and response topics.
	Topic   string
	Timeout time.Duration
	QoS     byte
}

// Bridge serves a graphic over MQTT. Requests arrive on <topic>/request and
// are answered on <topic>/response in arrival order.
type Bridge struct {
	client   paho.Client
	dispatch *Dispatcher
	queue    chan []byte
	done     chan struct{}
	opts     BridgeOptions
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewBridge(client paho.Client, api graphic.API, opts BridgeOptions) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Bridge{
		client:   client,
		dispatch: NewDispatcher(api),
		queue:    make(chan []byte, queueSize),
		done:     make(chan struct{}),
		opts:     opts,
	}
}

// RequestTopic returns the topic the bridge listens on.
func (b *Bridge) RequestTopic() string { return b.opts.Topic + "/request" }

// ResponseTopic returns the topic the bridge answers on.
func (b *Bridge) ResponseTopic() string { return b.opts.Topic + "/response" }

// Start subscribes and serves requests until ctx ends or Stop is called.
func (b *Bridge) Start(ctx context.Context) error {
	if err := wait(ctx, b.client.Subscribe(b.RequestTopic(), b.opts.QoS, b.onMessage), b.opts.Timeout); err != nil {
		return errors.Wrap(errors.PhaseControl, errors.KindInternal, err, "subscribe to "+b.RequestTopic())
	}
	Logger().Info("control bridge listening", zap.String("topic", b.RequestTopic()))

	b.wg.Add(1)
	go b.serve(ctx)
	return nil
}

// onMessage runs on paho's goroutine, which must not block.
func (b *Bridge) onMessage(_ paho.Client, msg paho.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	select {
	case b.queue <- payload:
	default:
		Logger().Warn("control queue full, request rejected", zap.Int("size", queueSize))
		go b.reject(payload)
	}
}

func (b *Bridge) reject(payload []byte) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		Logger().Debug("rejected request is not valid JSON, answering without id", zap.Error(err))
	}
	out, _ := json.Marshal(Response{
		ID:     req.ID,
		Action: req.Action,
		Result: graphic.Result{StatusCode: errors.StatusInternal, Message: "control queue full"},
		Error:  "control queue full",
	})
	b.publish(context.Background(), out)
}

func (b *Bridge) serve(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case payload := <-b.queue:
			b.publish(ctx, b.dispatch.Handle(ctx, payload))
		case <-ctx.Done():
			return
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) publish(ctx context.Context, out []byte) {
	tok := b.client.Publish(b.ResponseTopic(), b.opts.QoS, false, out)
	if err := wait(ctx, tok, b.opts.Timeout); err != nil {
		Logger().Warn("publish control response", zap.String("topic", b.ResponseTopic()), zap.Error(err))
	}
}

// Stop unsubscribes and waits for the request in progress.
func (b *Bridge) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		if e := wait(ctx, b.client.Unsubscribe(b.RequestTopic()), b.opts.Timeout); e != nil {
			err = errors.Wrap(errors.PhaseControl, errors.KindInternal, e, "unsubscribe")
		}
	})
	return err
}
