// Package chat turns WhatsApp messages from technicians and subscribers into
// resolver lookups and ACS actions.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/isp-ops/internal/confirm"
	"github.com/taoyao-code/isp-ops/internal/device"
	"github.com/taoyao-code/isp-ops/internal/metrics"
	"github.com/taoyao-code/isp-ops/internal/params"
	"github.com/taoyao-code/isp-ops/internal/phone"
	"github.com/taoyao-code/isp-ops/internal/resolver"
)

// Resolver is the resolution engine as seen by the chat router.
type Resolver interface {
	Resolve(ctx context.Context, identifier string, kind resolver.Kind) (resolver.MatchResult, error)
	Table() *params.Table
}

// Operator performs the device actions chat commands can trigger.
type Operator interface {
	Reboot(ctx context.Context, id string) error
	AddTag(ctx context.Context, id, tag string) error
}

// Message is one inbound chat message.
type Message struct {
	From string
	Text string
}

const actionReboot = "reboot"

// Router dispatches command messages.
type Router struct {
	resolver Resolver
	ops      Operator
	pending  confirm.Store
	admins   map[string]struct{}
	logger   *zap.Logger
	metrics  *metrics.AppMetrics
	now      func() time.Time
}

func NewRouter(r Resolver, ops Operator, pending confirm.Store, adminPhones []string, logger *zap.Logger, m *metrics.AppMetrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[string]struct{}, len(adminPhones))
	for _, p := range adminPhones {
		if n := phone.Normalize(p); n != "" {
			admins[n] = struct{}{}
		}
	}
	return &Router{
		resolver: r,
		ops:      ops,
		pending:  pending,
		admins:   admins,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Requester returns the requester identity of a gateway address such as
// "6281234567890@s.whatsapp.net".
func Requester(from string) string {
	if i := strings.IndexByte(from, '@'); i >= 0 {
		from = from[:i]
	}
	if n := phone.Normalize(from); n != "" {
		return n
	}
	return strings.TrimSpace(from)
}

// GuessKind picks the identifier kind: "sn:" and "pppoe:" prefixes force a
// kind, phone-looking input is a phone, anything else a PPPoE username.
func GuessKind(identifier string) (string, resolver.Kind) {
	s := strings.TrimSpace(identifier)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "sn:"):
		return strings.TrimSpace(s[3:]), resolver.KindSerial
	case strings.HasPrefix(lower, "pppoe:"):
		return strings.TrimSpace(s[6:]), resolver.KindPPPoE
	case phone.LooksLikePhone(s):
		return s, resolver.KindPhone
	default:
		return s, resolver.KindPPPoE
	}
}

// Handle runs one message and returns the reply text. Failures are reported
// to the user in the reply; the error is only for logging.
func (r *Router) Handle(ctx context.Context, msg Message) (string, error) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return helpText, nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	sender := Requester(msg.From)

	switch cmd {
	case "cek", "check":
		r.metrics.ChatCommand("cek")
		return r.check(ctx, sender, args)
	case "reboot":
		r.metrics.ChatCommand("reboot")
		return r.requestReboot(ctx, sender, args)
	case "ya", "yes", "y":
		r.metrics.ChatCommand("confirm")
		return r.confirm(ctx, sender)
	case "batal", "cancel":
		r.metrics.ChatCommand("cancel")
		return r.cancel(ctx, sender)
	case "tag":
		r.metrics.ChatCommand("tag")
		return r.tag(ctx, sender, args)
	case "help", "bantuan", "menu":
		r.metrics.ChatCommand("help")
		return helpText, nil
	default:
		r.metrics.ChatCommand("unknown")
		return "Unknown command. Send HELP for the command list.", nil
	}
}

const helpText = `Commands:
CEK - status of the device on your number
REBOOT - reboot the device on your number, asks for confirmation
CEK / REBOOT <pppoe|phone|sn:serial> - any device (admin)
YA - confirm the pending action
BATAL - cancel the pending action
TAG <pppoe|sn:serial> <phone> - link a phone number to a device (admin)
HELP - this list`

const ownDeviceOnly = "You can only check or reboot the device registered to your own number. Send CEK or REBOOT without an identifier."

func (r *Router) isAdmin(sender string) bool {
	_, ok := r.admins[sender]
	return ok
}

// mayTarget reports whether sender may act on the device named by args.
// Subscribers are limited to their own number; admins may name any device.
func (r *Router) mayTarget(sender string, args []string) bool {
	if len(args) == 0 || r.isAdmin(sender) {
		return true
	}
	joined := strings.Join(args, "")
	return phone.LooksLikePhone(joined) && phone.Normalize(joined) == sender
}

// target resolves args, or the sender's own number when args is empty.
func (r *Router) target(ctx context.Context, sender string, args []string) (string, resolver.MatchResult, error) {
	ident, kind := sender, resolver.KindPhone
	if len(args) > 0 {
		ident, kind = GuessKind(strings.Join(args, " "))
	}
	res, err := r.resolver.Resolve(ctx, ident, kind)
	return ident, res, err
}

func (r *Router) check(ctx context.Context, sender string, args []string) (string, error) {
	if !r.mayTarget(sender, args) {
		return ownDeviceOnly, nil
	}
	ident, res, err := r.target(ctx, sender, args)
	if reply, done := r.unresolved(ident, res, err); done {
		return reply, err
	}
	return r.describe(res), nil
}

func (r *Router) requestReboot(ctx context.Context, sender string, args []string) (string, error) {
	if !r.mayTarget(sender, args) {
		r.logger.Warn("chat reboot of another device refused",
			zap.String("requester", sender), zap.Strings("args", args))
		return ownDeviceOnly, nil
	}
	ident, res, err := r.target(ctx, sender, args)
	if reply, done := r.unresolved(ident, res, err); done {
		return reply, err
	}
	p, err := r.pending.Put(ctx, confirm.Pending{
		Requester:  sender,
		Action:     actionReboot,
		DeviceID:   res.Device.ID,
		Identifier: ident,
	})
	if err != nil {
		return "Could not store the confirmation, please try again.", fmt.Errorf("store confirmation: %w", err)
	}
	ttl := p.ExpiresAt.Sub(p.CreatedAt).Round(time.Second)
	return fmt.Sprintf("Reboot device %s (%s)?\nReply YA to confirm or BATAL to cancel within %s.",
		res.Device.ID, ident, ttl), nil
}

func (r *Router) confirm(ctx context.Context, sender string) (string, error) {
	p, err := r.pending.Take(ctx, sender)
	if err != nil {
		return "Could not read the pending confirmation, please try again.", fmt.Errorf("take confirmation: %w", err)
	}
	if p == nil {
		return "Nothing to confirm.", nil
	}
	switch p.Action {
	case actionReboot:
		if err := r.ops.Reboot(ctx, p.DeviceID); err != nil {
			return "Reboot failed, the ACS did not accept the task.", fmt.Errorf("reboot %s: %w", p.DeviceID, err)
		}
		r.logger.Info("chat reboot executed",
			zap.String("requester", sender),
			zap.String("device_id", p.DeviceID),
			zap.String("identifier", p.Identifier),
		)
		return fmt.Sprintf("Reboot sent to %s. The device will be back in a few minutes.", p.DeviceID), nil
	default:
		return "Nothing to confirm.", fmt.Errorf("unknown pending action %q", p.Action)
	}
}

func (r *Router) cancel(ctx context.Context, sender string) (string, error) {
	ok, err := r.pending.Cancel(ctx, sender)
	if err != nil {
		return "Could not cancel, please try again.", fmt.Errorf("cancel confirmation: %w", err)
	}
	if !ok {
		return "Nothing to cancel.", nil
	}
	return "Cancelled.", nil
}

func (r *Router) tag(ctx context.Context, sender string, args []string) (string, error) {
	if !r.isAdmin(sender) {
		return "TAG is only available to administrators.", nil
	}
	if len(args) < 2 {
		return "Usage: TAG <pppoe|sn:serial> <phone>", nil
	}
	number := phone.Normalize(strings.Join(args[1:], ""))
	if number == "" {
		return "Usage: TAG <pppoe|sn:serial> <phone>", nil
	}

	ident, kind := GuessKind(args[0])
	res, err := r.resolver.Resolve(ctx, ident, kind)
	if reply, done := r.unresolved(ident, res, err); done {
		return reply, err
	}
	if err := r.ops.AddTag(ctx, res.Device.ID, number); err != nil {
		return "Tagging failed, the ACS did not accept the change.", fmt.Errorf("tag %s: %w", res.Device.ID, err)
	}
	return fmt.Sprintf("Device %s is now linked to %s.", res.Device.ID, number), nil
}

// unresolved renders every non-match; done is false when res holds a device.
func (r *Router) unresolved(ident string, res resolver.MatchResult, err error) (string, bool) {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "The lookup timed out, please try again.", true
		}
		return "The device server is not reachable right now, please try again later.", true
	}
	switch {
	case res.Found():
		return "", false
	case res.Outcome == resolver.OutcomeTooBroad:
		return fmt.Sprintf("Could not find %s quickly, the search is too broad. Try the PPPoE username or sn:<serial>.", ident), true
	default:
		return fmt.Sprintf("No device found for %s.", ident), true
	}
}

var fieldLabels = map[params.Field]string{
	params.FieldPPPUsername:      "PPPoE",
	params.FieldSerialNumber:     "Serial",
	params.FieldModel:            "Model",
	params.FieldManufacturer:     "Vendor",
	params.FieldSoftwareVersion:  "Firmware",
	params.FieldRXPower:          "RX power",
	params.FieldTXPower:          "TX power",
	params.FieldTemperature:      "Temperature",
	params.FieldUptime:           "Uptime",
	params.FieldIPAddress:        "IP",
	params.FieldMACAddress:       "MAC",
	params.FieldSSID:             "SSID",
	params.FieldConnectedClients: "Clients",
	params.FieldTags:             "Tags",
}

func (r *Router) describe(res resolver.MatchResult) string {
	d := res.Device
	summary := r.resolver.Table().Summarize(d)

	status := "offline"
	if d.Online(r.now(), device.DefaultOnlineWindow) {
		status = "online"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Device %s (%s)\n", d.ID, status)
	if res.Customer != nil {
		fmt.Fprintf(&b, "Customer: %s", res.Customer.Name)
		if res.Customer.Package != "" {
			fmt.Fprintf(&b, " / %s", res.Customer.Package)
		}
		b.WriteString("\n")
	}
	for _, f := range params.SummaryFields {
		label, ok := fieldLabels[f]
		if !ok {
			label = string(f)
		}
		text := summary.Display(f)
		if f == params.FieldUptime {
			if v, ok := summary.Values[f]; ok {
				if secs, ok := v.Float(); ok {
					text = FormatUptime(time.Duration(secs) * time.Second)
				}
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", label, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatUptime renders d as "3d 4h 5m", dropping leading zero units.
func FormatUptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	days := int(d / (24 * time.Hour))
	hours := int(d%(24*time.Hour)) / int(time.Hour)
	mins := int(d%time.Hour) / int(time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
