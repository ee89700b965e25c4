// Package discord adapts a Discord forum channel to the mirror.Messenger
// contract. Each case gets a forum thread; locking maps onto Discord's
// thread lock flag.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"ndsregistry/internal/mirror"
	"ndsregistry/pkg/platform/sentinel"
)

// Discord rejects sends into archived threads with this JSON error code.
// Locked forum threads auto-archive, so this is the lock rejection we see.
const codeThreadArchived = 50083

const threadArchiveMinutes = 10080 // 7 days, the forum maximum

// Messenger posts into forum threads under a single configured channel.
type Messenger struct {
	session *discordgo.Session
	forumID string
}

func NewMessenger(session *discordgo.Session, forumChannelID string) *Messenger {
	return &Messenger{session: session, forumID: forumChannelID}
}

func (m *Messenger) CreateThread(ctx context.Context, title, content string) (string, error) {
	thread, err := m.session.ForumThreadStart(m.forumID, title, threadArchiveMinutes, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", translate(err)
	}
	return thread.ID, nil
}

func (m *Messenger) Post(ctx context.Context, threadRef, content string) error {
	_, err := m.session.ChannelMessageSend(threadRef, content, discordgo.WithContext(ctx))
	return translate(err)
}

func (m *Messenger) SetLocked(ctx context.Context, threadRef string, locked bool) error {
	edit := &discordgo.ChannelEdit{Locked: &locked}
	if !locked {
		// Unlocking an auto-archived thread needs the archive flag cleared
		// too, or sends keep bouncing.
		unarchived := false
		edit.Archived = &unarchived
	}
	_, err := m.session.ChannelEdit(threadRef, edit, discordgo.WithContext(ctx))
	return translate(err)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil && restErr.Message.Code == codeThreadArchived {
		return mirror.ErrThreadLocked
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case 403:
			return fmt.Errorf("%w: %v", sentinel.ErrPermissionDenied, err)
		case 404:
			return fmt.Errorf("%w: thread missing", sentinel.ErrNotFound)
		}
	}
	return err
}
