package bot

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"umbrella/internal/metrics"
	"umbrella/internal/models"
	"umbrella/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	chatID := msg.Chat.ID

	if command == "start" || command == "help" {
		b.handleHelp(msg)
		return
	}
	if !b.isManager(msg.From.ID) {
		zerolog.Ctx(ctx).Warn().Int64("user_id", msg.From.ID).Str("command", command).Msg("command from non-manager")
		b.sendMessage(chatID, fmt.Sprintf("⛔ Akses ditolak. ID Telegram Anda: %d", msg.From.ID))
		return
	}

	var err error
	switch command {
	case "spots":
		err = b.handleSpots(ctx, chatID)
	case "user":
		err = b.handleUser(ctx, chatID, args)
	case "rental":
		err = b.handleRental(ctx, chatID, args)
	case "end":
		err = b.handleEnd(ctx, chatID, args)
	case "topup":
		err = b.handleTopUp(ctx, chatID, args)
	case "export":
		err = b.handleExport(ctx, chatID, args)
	default:
		b.sendMessage(chatID, "Perintah tidak dikenal. Ketik /help untuk daftar perintah.")
		return
	}

	metrics.IncBotCommand(command, err)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("command", command).Msg("command failed")
		b.sendMessage(chatID, getErrorMessage(err))
	}
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) {
	var sb strings.Builder
	sb.WriteString("☂️ Bot operasional sewa payung\n\n")
	if b.isManager(msg.From.ID) {
		sb.WriteString("/spots - stok payung per titik\n")
		sb.WriteString("/user <id> - saldo dan sewa aktif pengguna\n")
		sb.WriteString("/rental <id> - detail sewa\n")
		sb.WriteString("/end <id> - akhiri sewa (pengembalian di loket)\n")
		sb.WriteString("/topup <user_id> <nominal> - top up saldo tunai\n")
		sb.WriteString("/export <YYYY-MM-DD> <YYYY-MM-DD> - laporan Excel\n\n")
	}
	sb.WriteString(fmt.Sprintf("ID Telegram Anda: %d", msg.From.ID))
	b.sendMessage(msg.Chat.ID, sb.String())
}

func (b *Bot) handleSpots(ctx context.Context, chatID int64) error {
	spots, err := b.rentals.Spots(ctx)
	if err != nil {
		return err
	}
	if len(spots) == 0 {
		b.sendMessage(chatID, "Belum ada titik sewa.")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("📍 Titik sewa:\n")
	for _, spot := range spots {
		sb.WriteString(fmt.Sprintf("• %s (%s): %d payung\n", spot.Name, spot.ID, spot.UmbrellaCount))
	}
	b.sendMessage(chatID, sb.String())
	return nil
}

func (b *Bot) handleUser(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 1 {
		b.sendMessage(chatID, "Format: /user <id>")
		return nil
	}

	user, err := b.users.GetUser(ctx, args[0])
	if err != nil {
		return err
	}
	active, err := b.rentals.ActiveRental(ctx, user.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 %s\nID: %s\n", user.Name, user.ID))
	if user.Phone != "" {
		sb.WriteString(fmt.Sprintf("Telepon: %s\n", user.Phone))
	}
	sb.WriteString(fmt.Sprintf("Saldo: Rp %s\n", notify.FormatRupiah(user.Balance)))
	if active != nil {
		sb.WriteString(fmt.Sprintf("Sewa aktif: #%d, batas kembali %s", active.ID, notify.FormatClock(active.Deadline(), b.location)))
	} else {
		sb.WriteString("Tidak ada sewa aktif")
	}
	b.sendMessage(chatID, sb.String())
	return nil
}

func (b *Bot) handleRental(ctx context.Context, chatID int64, args []string) error {
	id, ok := b.parseRentalID(chatID, args, "/rental")
	if !ok {
		return nil
	}

	rental, err := b.rentals.GetRental(ctx, id)
	if err != nil {
		return err
	}
	b.sendMessage(chatID, b.formatRental(rental))
	return nil
}

// handleEnd closes a rental returned at the counter. The charge is computed
// exactly as for a return through the app.
func (b *Bot) handleEnd(ctx context.Context, chatID int64, args []string) error {
	id, ok := b.parseRentalID(chatID, args, "/end")
	if !ok {
		return nil
	}

	rental, err := b.rentals.EndRental(ctx, id)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Int64("rental_id", rental.ID).Int64("extra_charge", rental.ExtraCharge).Msg("rental ended by operator")
	b.sendMessage(chatID, "✅ Sewa diakhiri.\n\n"+b.formatRental(rental))
	return nil
}

func (b *Bot) handleTopUp(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 2 {
		b.sendMessage(chatID, "Format: /topup <user_id> <nominal>")
		return nil
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		b.sendMessage(chatID, "Nominal harus berupa angka.")
		return nil
	}

	balance, err := b.users.TopUp(ctx, args[0], amount)
	if err != nil {
		return err
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ Top up Rp %s berhasil. Saldo sekarang Rp %s.",
		notify.FormatRupiah(amount), notify.FormatRupiah(balance)))
	return nil
}

func (b *Bot) handleExport(ctx context.Context, chatID int64, args []string) error {
	if b.report == nil {
		b.sendMessage(chatID, "Ekspor tidak tersedia.")
		return nil
	}
	if len(args) != 2 {
		b.sendMessage(chatID, "Format: /export <YYYY-MM-DD> <YYYY-MM-DD>")
		return nil
	}

	from, err := time.ParseInLocation(dateLayout, args[0], b.location)
	if err != nil {
		b.sendMessage(chatID, "Tanggal awal wajib berformat YYYY-MM-DD.")
		return nil
	}
	lastDay, err := time.ParseInLocation(dateLayout, args[1], b.location)
	if err != nil {
		b.sendMessage(chatID, "Tanggal akhir wajib berformat YYYY-MM-DD.")
		return nil
	}
	if lastDay.Before(from) {
		b.sendMessage(chatID, "Tanggal akhir harus setelah tanggal awal.")
		return nil
	}

	rentals, err := b.rentals.RentalsBetween(ctx, from, lastDay.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	spots, err := b.rentals.Spots(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]string, len(spots))
	for _, spot := range spots {
		names[spot.ID] = spot.Name
	}

	path, err := b.report.Save(rentals, names, from, lastDay)
	if err != nil {
		return err
	}
	defer os.Remove(path)

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = fmt.Sprintf("Laporan sewa %s s.d. %s (%d sewa)", args[0], args[1], len(rentals))
	if _, err := b.tgService.Send(doc); err != nil {
		return fmt.Errorf("send export: %w", err)
	}
	return nil
}

func (b *Bot) parseRentalID(chatID int64, args []string, usage string) (int64, bool) {
	if len(args) != 1 {
		b.sendMessage(chatID, fmt.Sprintf("Format: %s <id>", usage))
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		b.sendMessage(chatID, "ID sewa tidak valid.")
		return 0, false
	}
	return id, true
}

func (b *Bot) formatRental(r *models.Rental) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("☂️ Sewa #%d\n", r.ID))
	sb.WriteString(fmt.Sprintf("Pengguna: %s\nTitik: %s\n", r.UserID, r.SpotID))
	sb.WriteString(fmt.Sprintf("Mulai: %s (%d jam)\n", r.StartTime.In(b.location).Format("02.01.2006 15:04"), r.AllowedDurationHours))
	sb.WriteString(fmt.Sprintf("Metode: %s\nHarga: Rp %s\n", r.PaymentMethod.Label(), notify.FormatRupiah(r.Price)))

	if r.Active {
		sb.WriteString(fmt.Sprintf("Status: aktif, batas kembali %s", notify.FormatClock(r.Deadline(), b.location)))
		return sb.String()
	}

	if r.EndTime != nil {
		sb.WriteString(fmt.Sprintf("Selesai: %s (%s)\n", notify.FormatClock(*r.EndTime, b.location), notify.FormatDuration(r.Elapsed(*r.EndTime))))
	}
	sb.WriteString(fmt.Sprintf("Denda: Rp %s\nTotal: Rp %s", notify.FormatRupiah(r.ExtraCharge), notify.FormatRupiah(r.Price+r.ExtraCharge)))
	return sb.String()
}
