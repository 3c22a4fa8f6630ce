package domain

// SamplePlan 内置示例计划，仅用于预填输入框
const SamplePlan = `Project: Atlas CRM Migration

Goal: Replace the legacy in-house CRM with a cloud-based CRM and migrate all
customer records, sales pipelines and support tickets before the current
vendor contract expires.

Timeline: 3 months (12 weeks), hard deadline on contract expiry.
- Weeks 1-2: Requirements gathering with Sales and Support.
- Weeks 3-6: Data model mapping and migration scripts.
- Weeks 7-9: Integrations (billing system, email marketing, SSO).
- Weeks 10-11: User acceptance testing.
- Week 12: Cutover weekend and go-live.

Team:
- 2 backend developers (one of them part-time, also on-call for billing).
- 1 project manager.
- No dedicated QA; Sales volunteers will test during UAT.

Budget: Fixed, no contingency line.

Assumptions:
- The legacy database schema is documented (last updated 2019).
- The billing vendor will provide API access by week 6.
- Training will happen after go-live through recorded videos.

Out of scope: Reporting dashboards, mobile app.
`
