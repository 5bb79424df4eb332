// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package group

import (
	"context"
	"encoding/json"

	"github.com/acp-project/acp-go/pkg/acp/acperrors"
)

// Ops is the thin typed facade over Client.SendRPC enumerated in
// spec.md §4.8 — lifecycle, group CRUD, membership, invite codes, rules,
// messaging, broadcast control, sync diagnostics, and analytics.
type Ops struct {
	client *Client
}

// NewOps wraps client in the typed RPC facade.
func NewOps(client *Client) *Ops {
	return &Ops{client: client}
}

func (o *Ops) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	data, err := o.client.SendRPC(ctx, method, params, 0)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return acperrors.Wrap(acperrors.Internal, "decode "+method+" response", err)
	}
	return nil
}

// --- lifecycle ---

func (o *Ops) RegisterOnline(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "register_online", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) UnregisterOnline(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "unregister_online", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) Heartbeat(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "heartbeat", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) UnregisterMembership(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "unregister_membership", map[string]string{"group_id": groupID}, 0)
}

// --- group CRUD ---

// GroupInfo is the common response shape for group metadata RPCs.
type GroupInfo struct {
	GroupID      string `json:"group_id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	MemberCount  int    `json:"member_count"`
	Master       string `json:"master"`
	Suspended    bool   `json:"suspended"`
	LastMsgID    int64  `json:"last_msg_id"`
	Announcement string `json:"announcement,omitempty"`
}

func (o *Ops) CreateGroup(ctx context.Context, name, description string) (GroupInfo, error) {
	var info GroupInfo
	err := o.call(ctx, "create_group", map[string]string{"name": name, "description": description}, &info)
	return info, err
}

func (o *Ops) GetGroupInfo(ctx context.Context, groupID string) (GroupInfo, error) {
	var info GroupInfo
	err := o.call(ctx, "get_group_info", map[string]string{"group_id": groupID}, &info)
	return info, err
}

func (o *Ops) ListMyGroups(ctx context.Context) ([]GroupInfo, error) {
	var groups []GroupInfo
	err := o.call(ctx, "list_my_groups", map[string]string{}, &groups)
	return groups, err
}

func (o *Ops) SearchGroups(ctx context.Context, query string) ([]GroupInfo, error) {
	var groups []GroupInfo
	err := o.call(ctx, "search_groups", map[string]string{"query": query}, &groups)
	return groups, err
}

func (o *Ops) DissolveGroup(ctx context.Context, groupID string) error {
	return o.call(ctx, "dissolve_group", map[string]string{"group_id": groupID}, nil)
}

func (o *Ops) SuspendGroup(ctx context.Context, groupID string) error {
	return o.call(ctx, "suspend_group", map[string]string{"group_id": groupID}, nil)
}

func (o *Ops) ResumeGroup(ctx context.Context, groupID string) error {
	return o.call(ctx, "resume_group", map[string]string{"group_id": groupID}, nil)
}

func (o *Ops) UpdateGroupMeta(ctx context.Context, groupID string, meta map[string]interface{}) error {
	params := map[string]interface{}{"group_id": groupID}
	for k, v := range meta {
		params[k] = v
	}
	return o.call(ctx, "update_group_meta", params, nil)
}

// --- membership ---

// Member is one entry of a group's roster.
type Member struct {
	AgentID string `json:"agent_id"`
	Role    string `json:"role"`
	JoinedAt int64 `json:"joined_at"`
}

func (o *Ops) JoinByURL(ctx context.Context, groupURL string) (GroupInfo, error) {
	parsed, err := ParseGroupURL(groupURL)
	if err != nil {
		return GroupInfo{}, acperrors.Wrap(acperrors.InvalidArgument, "parse group url", err)
	}
	var info GroupInfo
	err = o.call(ctx, "join_by_url", map[string]string{
		"group_id": parsed.GroupID, "target_aid": parsed.TargetAID, "code": parsed.Code,
	}, &info)
	return info, err
}

func (o *Ops) RequestJoin(ctx context.Context, groupID, message string) error {
	return o.call(ctx, "request_join", map[string]string{"group_id": groupID, "message": message}, nil)
}

func (o *Ops) UseInviteCode(ctx context.Context, code string) (GroupInfo, error) {
	var info GroupInfo
	err := o.call(ctx, "use_invite_code", map[string]string{"code": code}, &info)
	return info, err
}

func (o *Ops) ReviewJoinRequest(ctx context.Context, groupID, requesterAID string, approve bool) error {
	return o.call(ctx, "review_join_request", map[string]interface{}{
		"group_id": groupID, "agent_id": requesterAID, "approve": approve,
	}, nil)
}

func (o *Ops) BatchReviewJoinRequests(ctx context.Context, groupID string, requesterAIDs []string, approve bool) error {
	return o.call(ctx, "batch_review_join_requests", map[string]interface{}{
		"group_id": groupID, "agent_ids": requesterAIDs, "approve": approve,
	}, nil)
}

func (o *Ops) LeaveGroup(ctx context.Context, groupID string) error {
	return o.call(ctx, "leave_group", map[string]string{"group_id": groupID}, nil)
}

func (o *Ops) GetMembers(ctx context.Context, groupID string) ([]Member, error) {
	var members []Member
	err := o.call(ctx, "get_members", map[string]string{"group_id": groupID}, &members)
	return members, err
}

func (o *Ops) AddMember(ctx context.Context, groupID, agentID string) error {
	return o.call(ctx, "add_member", map[string]string{"group_id": groupID, "agent_id": agentID}, nil)
}

func (o *Ops) RemoveMember(ctx context.Context, groupID, agentID string) error {
	return o.call(ctx, "remove_member", map[string]string{"group_id": groupID, "agent_id": agentID}, nil)
}

func (o *Ops) ChangeMemberRole(ctx context.Context, groupID, agentID, role string) error {
	return o.call(ctx, "change_member_role", map[string]string{"group_id": groupID, "agent_id": agentID, "role": role}, nil)
}

func (o *Ops) BanAgent(ctx context.Context, groupID, agentID, reason string) error {
	return o.call(ctx, "ban_agent", map[string]string{"group_id": groupID, "agent_id": agentID, "reason": reason}, nil)
}

func (o *Ops) UnbanAgent(ctx context.Context, groupID, agentID string) error {
	return o.call(ctx, "unban_agent", map[string]string{"group_id": groupID, "agent_id": agentID}, nil)
}

func (o *Ops) GetBanlist(ctx context.Context, groupID string) ([]Member, error) {
	var banned []Member
	err := o.call(ctx, "get_banlist", map[string]string{"group_id": groupID}, &banned)
	return banned, err
}

func (o *Ops) TransferMaster(ctx context.Context, groupID, newMasterAID string) error {
	return o.call(ctx, "transfer_master", map[string]string{"group_id": groupID, "agent_id": newMasterAID}, nil)
}

func (o *Ops) GetMaster(ctx context.Context, groupID string) (string, error) {
	var body struct {
		Master string `json:"master"`
	}
	err := o.call(ctx, "get_master", map[string]string{"group_id": groupID}, &body)
	return body.Master, err
}

// --- invite codes ---

// InviteCode is one group invite code record.
type InviteCode struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expires_at"`
	MaxUses   int    `json:"max_uses"`
	Uses      int    `json:"uses"`
}

func (o *Ops) CreateInviteCode(ctx context.Context, groupID string, maxUses int, ttlSeconds int64) (InviteCode, error) {
	var code InviteCode
	err := o.call(ctx, "create_invite_code", map[string]interface{}{
		"group_id": groupID, "max_uses": maxUses, "ttl_seconds": ttlSeconds,
	}, &code)
	return code, err
}

func (o *Ops) ListInviteCodes(ctx context.Context, groupID string) ([]InviteCode, error) {
	var codes []InviteCode
	err := o.call(ctx, "list_invite_code", map[string]string{"group_id": groupID}, &codes)
	return codes, err
}

func (o *Ops) RevokeInviteCode(ctx context.Context, groupID, code string) error {
	return o.call(ctx, "revoke_invite_code", map[string]string{"group_id": groupID, "code": code}, nil)
}

// --- rules ---

func (o *Ops) GetRules(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_rules", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) UpdateRules(ctx context.Context, groupID string, rules map[string]interface{}) error {
	params := map[string]interface{}{"group_id": groupID}
	for k, v := range rules {
		params[k] = v
	}
	return o.call(ctx, "update_rules", params, nil)
}

func (o *Ops) GetJoinRequirements(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_join_requirements", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) UpdateJoinRequirements(ctx context.Context, groupID string, requirements map[string]interface{}) error {
	params := map[string]interface{}{"group_id": groupID}
	for k, v := range requirements {
		params[k] = v
	}
	return o.call(ctx, "update_join_requirements", params, nil)
}

func (o *Ops) GetAnnouncement(ctx context.Context, groupID string) (string, error) {
	var body struct {
		Announcement string `json:"announcement"`
	}
	err := o.call(ctx, "get_announcement", map[string]string{"group_id": groupID}, &body)
	return body.Announcement, err
}

func (o *Ops) UpdateAnnouncement(ctx context.Context, groupID, announcement string) error {
	return o.call(ctx, "update_announcement", map[string]string{"group_id": groupID, "announcement": announcement}, nil)
}

func (o *Ops) GetAdmins(ctx context.Context, groupID string) ([]Member, error) {
	var admins []Member
	err := o.call(ctx, "get_admins", map[string]string{"group_id": groupID}, &admins)
	return admins, err
}

// --- messaging ---

func (o *Ops) SendGroupMessage(ctx context.Context, groupID string, body interface{}) (int64, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return 0, acperrors.Wrap(acperrors.Internal, "marshal group message body", err)
	}
	var resp struct {
		MsgID int64 `json:"msg_id"`
	}
	err = o.call(ctx, "send_group_message", map[string]interface{}{
		"group_id": groupID, "body": json.RawMessage(bodyJSON),
	}, &resp)
	return resp.MsgID, err
}

func (o *Ops) PullMessages(ctx context.Context, groupID string, after int64, limit int) (MessageBatch, error) {
	var batch MessageBatch
	err := o.call(ctx, "pull_messages", map[string]interface{}{
		"group_id": groupID, "after": after, "limit": limit,
	}, &batch)
	return batch, err
}

func (o *Ops) AckMessages(ctx context.Context, groupID string, latestMsgID int64) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "ack_messages", map[string]interface{}{
		"group_id": groupID, "latest_msg_id": latestMsgID,
	}, 0)
}

func (o *Ops) PullEvents(ctx context.Context, groupID string, after int64, limit int) ([]Event, bool, error) {
	var body struct {
		Events  []Event `json:"events"`
		HasMore bool    `json:"has_more"`
	}
	err := o.call(ctx, "pull_events", map[string]interface{}{
		"group_id": groupID, "after": after, "limit": limit,
	}, &body)
	return body.Events, body.HasMore, err
}

func (o *Ops) AckEvents(ctx context.Context, groupID string, latestEventID int64) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "ack_events", map[string]interface{}{
		"group_id": groupID, "latest_event_id": latestEventID,
	}, 0)
}

// Cursor is the persisted sync position for one group.
type Cursor struct {
	StartMsgID   int64 `json:"start_msg_id"`
	CurrentMsgID int64 `json:"current_msg_id"`
	LatestMsgID  int64 `json:"latest_msg_id"`
	UnreadCount  int64 `json:"unread_count"`
}

func (o *Ops) GetCursor(ctx context.Context, groupID string) (Cursor, error) {
	var cursor Cursor
	err := o.call(ctx, "get_cursor", map[string]string{"group_id": groupID}, &cursor)
	return cursor, err
}

// --- broadcast control ---

func (o *Ops) AcquireBroadcastLock(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "acquire_broadcast_lock", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) ReleaseBroadcastLock(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "release_broadcast_lock", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) CheckBroadcastPermission(ctx context.Context, groupID string) (bool, error) {
	var body struct {
		Allowed bool `json:"allowed"`
	}
	err := o.call(ctx, "check_broadcast_permission", map[string]string{"group_id": groupID}, &body)
	return body.Allowed, err
}

// --- sync diagnostics ---

func (o *Ops) GetSyncStatus(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_sync_status", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) GetSyncLog(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_sync_log", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) GetChecksum(ctx context.Context, groupID string) (string, error) {
	var body struct {
		Checksum string `json:"checksum"`
	}
	err := o.call(ctx, "get_checksum", map[string]string{"group_id": groupID}, &body)
	return body.Checksum, err
}

func (o *Ops) GetMessageChecksum(ctx context.Context, groupID string, msgID int64) (string, error) {
	var body struct {
		Checksum string `json:"checksum"`
	}
	err := o.call(ctx, "get_message_checksum", map[string]interface{}{
		"group_id": groupID, "msg_id": msgID,
	}, &body)
	return body.Checksum, err
}

func (o *Ops) GetFile(ctx context.Context, groupID, fileID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_file", map[string]string{"group_id": groupID, "file_id": fileID}, 0)
}

// --- analytics ---

func (o *Ops) GenerateDigest(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "generate_digest", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) GetDigest(ctx context.Context, groupID, digestID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_digest", map[string]string{"group_id": groupID, "digest_id": digestID}, 0)
}

func (o *Ops) GetSummary(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_summary", map[string]string{"group_id": groupID}, 0)
}

func (o *Ops) GetMetrics(ctx context.Context, groupID string) (json.RawMessage, error) {
	return o.client.SendRPC(ctx, "get_metrics", map[string]string{"group_id": groupID}, 0)
}
